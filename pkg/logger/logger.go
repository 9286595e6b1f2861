// Package logger bridges slog onto *log.Logger for stdlib consumers.
package logger

import (
	"log"
	"log/slog"
)

// New returns a *log.Logger that writes through base at error level,
// tagged with component. Suitable for http.Server.ErrorLog.
func New(base *slog.Logger, component string) *log.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), slog.LevelError)
}
