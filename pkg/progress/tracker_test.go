package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"csa/pkg/core"
)

// syncBuffer guards the output buffer: the tracker loop writes from
// its own goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTrackerPaintsFinalLine(t *testing.T) {
	out := &syncBuffer{}
	tracker := New(out)

	tracker.Events() <- core.ProgressEvent{
		SessionID: "s", Completed: 2, Failed: 1, Total: 3, Status: "compressed",
	}
	tracker.Stop()

	assert.Contains(t, out.String(), "done: 2/3")
	assert.Contains(t, out.String(), "(1 failed)")
}

func TestTrackerSilentWithoutEvents(t *testing.T) {
	out := &syncBuffer{}
	tracker := New(out)
	tracker.Stop()
	assert.Empty(t, strings.TrimSpace(out.String()))
}
