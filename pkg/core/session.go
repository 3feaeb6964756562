package core

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"csa/pkg/codec"
)

// ProgressEvent is one best-effort progress notification. Events are
// immutable values sent over a channel; delivery loss only stales the
// display, the counters on the session remain authoritative.
type ProgressEvent struct {
	SessionID string
	Completed int
	Failed    int
	Total     int
	LastPath  string
	Status    string
}

// FailedFile records one file that could not be compressed.
type FailedFile struct {
	Path string
	Err  error
}

// Summary is the terminal report of a session: how many entries the
// finalized archive holds and which files failed. Failed paths are
// always reported, never silently dropped.
type Summary struct {
	Archive string
	Entries int
	Written int
	Failed  []FailedFile
	Stopped bool
}

// Options configures a write or append session.
type Options struct {
	// MaxWorkers bounds the compression pool. Zero means the CPU core
	// count, but never fewer than 4.
	MaxWorkers int

	// Selector chooses the codec per file. Nil means DefaultSelector.
	Selector codec.Selector

	// Events receives ProgressEvents, best effort: a full channel drops
	// the event rather than blocking a worker or the writer.
	Events chan<- ProgressEvent
}

func (o *Options) withDefaults() {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = runtime.NumCPU()
	}
	if o.MaxWorkers < 4 {
		o.MaxWorkers = 4
	}
	if o.Selector == nil {
		o.Selector = codec.DefaultSelector
	}
}

// Session is one in-flight create or append. Stop requests cooperative
// cancellation; Wait blocks until the archive is finalized.
type Session struct {
	ID string

	total     int
	completed atomic.Int64
	failed    atomic.Int64
	stop      atomic.Bool

	done    chan struct{}
	summary *Summary
	err     error
}

func newSession(total int) *Session {
	return &Session{
		ID:    uuid.NewString(),
		total: total,
		done:  make(chan struct{}),
	}
}

// Stop requests cancellation. The orchestrator checks the flag before
// each dispatch: no further tasks start, in-flight tasks run to
// completion, and the archive is finalized over whatever subset has
// arrived. Stop never forcibly interrupts work.
func (s *Session) Stop() {
	s.stop.Store(true)
}

// Progress returns the monotonically non-decreasing counters.
func (s *Session) Progress() (completed, failed, total int) {
	return int(s.completed.Load()), int(s.failed.Load()), s.total
}

// Wait blocks until the session has finalized and returns its summary.
// The error is non-nil only for structural failures (the archive could
// not be produced); per-file failures live in the summary.
func (s *Session) Wait() (*Summary, error) {
	<-s.done
	return s.summary, s.err
}

func (s *Session) finish(summary *Summary, err error) {
	s.summary = summary
	s.err = err
	close(s.done)
}

func (s *Session) emit(events chan<- ProgressEvent, lastPath, status string) {
	if events == nil {
		return
	}
	ev := ProgressEvent{
		SessionID: s.ID,
		Completed: int(s.completed.Load()),
		Failed:    int(s.failed.Load()),
		Total:     s.total,
		LastPath:  lastPath,
		Status:    status,
	}
	select {
	case events <- ev:
	default:
	}
}

// run drives one session: a bounded worker pool compressing files and
// the single writer goroutine (this one) serializing results into the
// archive. Finalize is called exactly once on every exit path, so the
// output is parseable even after cancellation or failures.
func (s *Session) run(tasks []Task, w *archiveWriter, opts Options) (*Summary, error) {
	taskCh := make(chan Task)
	resultCh := make(chan result, opts.MaxWorkers)

	var workers sync.WaitGroup
	for i := 0; i < opts.MaxWorkers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for task := range taskCh {
				resultCh <- compressOne(task, opts.Selector)
			}
		}()
	}

	go func() {
		for _, task := range tasks {
			if s.stop.Load() {
				break
			}
			taskCh <- task
		}
		close(taskCh)
		workers.Wait()
		close(resultCh)
	}()

	summary := &Summary{}
	var writeErr error
	for r := range resultCh {
		if r.err != nil {
			s.failed.Add(1)
			summary.Failed = append(summary.Failed, FailedFile{Path: r.task.RelPath, Err: r.err})
			Logger.Println(r.err)
			s.emit(opts.Events, r.task.RelPath, "failed")
			continue
		}
		// Once the sink has failed, later blobs cannot land on disk;
		// report them as discarded rather than pretending they were
		// written.
		if writeErr != nil {
			s.failed.Add(1)
			summary.Failed = append(summary.Failed, FailedFile{
				Path: r.task.RelPath,
				Err:  fmt.Errorf("discarded after archive write failure: %w", writeErr),
			})
			s.emit(opts.Events, r.task.RelPath, "discarded")
			continue
		}
		if err := w.add(r.task.RelPath, r.blob, r.origSize, r.method, r.sum); err != nil {
			writeErr = err
			s.failed.Add(1)
			summary.Failed = append(summary.Failed, FailedFile{Path: r.task.RelPath, Err: err})
			Logger.Println(err)
			s.emit(opts.Events, r.task.RelPath, "failed")
			continue
		}
		summary.Written++
		s.completed.Add(1)
		s.emit(opts.Events, r.task.RelPath, "compressed")
	}

	finalizeErr := w.finalize()
	closeErr := w.close()
	s.emit(opts.Events, "", "finalized")

	summary.Entries = len(w.index)
	summary.Stopped = s.stop.Load()
	switch {
	case writeErr != nil:
		return summary, writeErr
	case finalizeErr != nil:
		return summary, finalizeErr
	default:
		return summary, closeErr
	}
}
