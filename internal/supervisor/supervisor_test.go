package supervisor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type flakyService struct {
	calls atomic.Int32
}

func (s *flakyService) Serve(ctx context.Context) error {
	if s.calls.Add(1) == 1 {
		return errors.New("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *flakyService) String() string { return "flaky" }

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSupervisorRestartsFailedService(t *testing.T) {
	out := &lockedBuffer{}
	sup := New("test", Config{FailureBackoff: 10 * time.Millisecond}, zerolog.New(out))
	svc := &flakyService{}
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	require.Eventually(t, func() bool { return svc.calls.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-errCh

	require.Contains(t, out.String(), `"level":"warn"`)
	require.Contains(t, out.String(), "flaky")
}
