package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"NewsRelay/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "newsrelay:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
