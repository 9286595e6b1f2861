package control

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/usecase"
)

type stubOperator struct {
	mu       sync.Mutex
	health   usecase.Health
	report   domain.RunReport
	runErr   error
	forced   []bool
	failed   []domain.DeliveryRecord
	listErr  error
	removed  bool
	reqErr   error
	requeued []RequeueRequest
}

func (s *stubOperator) Health(context.Context) usecase.Health { return s.health }

func (s *stubOperator) Run(_ context.Context, forced bool) (domain.RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced = append(s.forced, forced)
	return s.report, s.runErr
}

func (s *stubOperator) calls() ([]bool, []RequeueRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.forced...), append([]RequeueRequest(nil), s.requeued...)
}

func (s *stubOperator) FailedDeliveries(context.Context) ([]domain.DeliveryRecord, error) {
	return s.failed, s.listErr
}

func (s *stubOperator) Requeue(_ context.Context, title, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeued = append(s.requeued, RequeueRequest{Title: title, Date: date})
	return s.removed, s.reqErr
}

func newTestServer(t *testing.T, op Operator) *Client {
	t.Helper()
	srv := httptest.NewServer(NewServer(op, "127.0.0.1:0", nil).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 0)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	op := &stubOperator{health: usecase.Health{
		Status:  "ok",
		Sources: []domain.SourceHealth{{Source: "BBC", State: domain.BreakerClosed}},
	}}
	client := newTestServer(t, op)

	h, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	require.Len(t, h.Sources, 1)
	assert.Equal(t, "BBC", h.Sources[0].Source)
}

func TestHealth_DegradedIs503(t *testing.T) {
	t.Parallel()

	op := &stubOperator{health: usecase.Health{Status: "degraded", StuckAttempted: 2}}
	srv := httptest.NewServer(NewServer(op, "", nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	h, err := NewClient(srv.URL, 0).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, 2, h.StuckAttempted)
}

func TestForce(t *testing.T) {
	t.Parallel()

	op := &stubOperator{report: domain.RunReport{Sent: 3, Run: domain.RunRecord{Forced: true, Status: domain.RunSuccess}}}
	client := newTestServer(t, op)

	report, err := client.Force(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Sent)
	forced, _ := op.calls()
	assert.Equal(t, []bool{true}, forced)
}

func TestForce_RunError(t *testing.T) {
	t.Parallel()

	op := &stubOperator{
		report: domain.RunReport{Run: domain.RunRecord{Status: domain.RunFailed}},
		runErr: errors.New("run panicked: boom"),
	}
	client := newTestServer(t, op)

	report, err := client.Force(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, domain.RunFailed, report.Run.Status)
}

func TestFailedDeliveries(t *testing.T) {
	t.Parallel()

	op := &stubOperator{failed: []domain.DeliveryRecord{{NormalizedTitle: "storm hits coast", Status: domain.DeliveryFailed}}}
	client := newTestServer(t, op)

	records, err := client.FailedDeliveries(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "storm hits coast", records[0].NormalizedTitle)
}

func TestFailedDeliveries_EmptyIsArray(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(NewServer(&stubOperator{}, "", nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/deliveries/failed")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(body))
}

func TestFailedDeliveries_StoreDown(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, &stubOperator{listErr: domain.ErrStoreUnavailable})
	_, err := client.FailedDeliveries(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestRequeue(t *testing.T) {
	t.Parallel()

	op := &stubOperator{removed: true}
	client := newTestServer(t, op)

	removed, err := client.Requeue(context.Background(), "Storm hits coast", "2025-06-10")
	require.NoError(t, err)
	assert.True(t, removed)
	_, requeued := op.calls()
	assert.Equal(t, []RequeueRequest{{Title: "Storm hits coast", Date: "2025-06-10"}}, requeued)
}

func TestRequeue_NotFound(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, &stubOperator{})
	removed, err := client.Requeue(context.Background(), "Nothing", "2025-06-10")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRequeue_BadInput(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, &stubOperator{reqErr: errors.New("requeue: empty title")})
	_, err := client.Requeue(context.Background(), "", "2025-06-10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty title")

	srv := httptest.NewServer(NewServer(&stubOperator{}, "", nil).Handler())
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/deliveries/requeue", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(NewServer(&stubOperator{}, "", nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/health", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestListen_AddressInUse(t *testing.T) {
	t.Parallel()

	first := NewServer(&stubOperator{}, "127.0.0.1:0", nil)
	ln, err := first.Listen()
	require.NoError(t, err)
	defer ln.Close()

	second := NewServer(&stubOperator{}, ln.Addr().String(), nil)
	_, err = second.Listen()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestNewClient_Base(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://127.0.0.1:8089", NewClient("127.0.0.1:8089", 0).base)
	assert.Equal(t, "https://relay.example", NewClient("https://relay.example/", 0).base)
}
