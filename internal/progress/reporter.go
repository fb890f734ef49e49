// Package progress aggregates per-chunk byte events from all workers and
// renders a status line at a fixed interval.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dustin/go-humanize"
)

// Reporter is what the scheduler and downloader talk to
type Reporter interface {
	OnEvent(taskID string, bytesDelta, totalExpected int64)
	OnResume(taskID string, offset, totalExpected int64)
	TaskPlanned(task types.DownloadTask)
	TaskFinished(result types.TransferResult)
	Start()
	Stop()
	Snapshot() Snapshot
}

// Snapshot is a consistent view of the counters
type Snapshot struct {
	FilesPlanned int
	FilesDone    int
	FilesFailed  int
	BytesPlanned int64
	BytesDone    int64
	// BytesTransferred counts only bytes received in this run
	BytesTransferred int64
	Elapsed          time.Duration
}

type taskProgress struct {
	done  int64
	total int64
}

// LineReporter prints one status line per interval to out
type LineReporter struct {
	mu       sync.Mutex
	tasks    map[string]*taskProgress
	snap     Snapshot
	started  time.Time
	out      io.Writer
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	running  bool
}

// NewLineReporter creates a reporter rendering to out every interval
func NewLineReporter(out io.Writer, interval time.Duration) *LineReporter {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &LineReporter{
		tasks:    make(map[string]*taskProgress),
		out:      out,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the render loop
func (r *LineReporter) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.started = time.Now()
	r.mu.Unlock()

	go r.renderLoop()
}

func (r *LineReporter) renderLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			r.render()
			return
		case <-ticker.C:
			r.render()
		}
	}
}

// Stop ends the loop after one final render. Safe to call more than once.
func (r *LineReporter) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		running := r.running
		r.mu.Unlock()
		close(r.stop)
		if running {
			<-r.done
		}
	})
}

func (r *LineReporter) TaskPlanned(task types.DownloadTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID()]; ok {
		return
	}
	r.tasks[task.ID()] = &taskProgress{total: task.ExpectedSize}
	r.snap.FilesPlanned++
	r.snap.BytesPlanned += task.ExpectedSize
}

// OnEvent adds delta bytes to the task. Negative deltas are ignored so
// counters never go backwards.
func (r *LineReporter) OnEvent(taskID string, bytesDelta, totalExpected int64) {
	if bytesDelta <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tp := r.task(taskID, totalExpected)
	r.snap.BytesTransferred += bytesDelta
	r.advance(tp, tp.done+bytesDelta)
}

// OnResume credits the bytes a resumed task already had on disk. They
// count as done but not as transferred in this run.
func (r *LineReporter) OnResume(taskID string, offset, totalExpected int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance(r.task(taskID, totalExpected), offset)
}

// task returns the progress of taskID, registering it when the scheduler
// never announced it
func (r *LineReporter) task(taskID string, total int64) *taskProgress {
	tp, ok := r.tasks[taskID]
	if !ok {
		tp = &taskProgress{total: total}
		r.tasks[taskID] = tp
		r.snap.FilesPlanned++
		r.snap.BytesPlanned += total
	}
	return tp
}

// advance moves a task's done counter forward, capped at its total
func (r *LineReporter) advance(tp *taskProgress, to int64) {
	if to > tp.total {
		to = tp.total
	}
	if to > tp.done {
		r.snap.BytesDone += to - tp.done
		tp.done = to
	}
}

func (r *LineReporter) TaskFinished(result types.TransferResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tp := r.task(result.Task.ID(), result.Task.ExpectedSize)
	switch result.Status {
	case types.StatusCompleted, types.StatusSkipped, types.StatusResumed:
		r.snap.FilesDone++
		r.advance(tp, tp.total)
	case types.StatusFailed:
		r.snap.FilesFailed++
	case types.StatusCancelled:
	}
}

func (r *LineReporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap
	if !r.started.IsZero() {
		s.Elapsed = time.Since(r.started)
	}
	return s
}

func (r *LineReporter) render() {
	fmt.Fprintln(r.out, FormatLine(r.Snapshot()))
}

// FormatLine renders a snapshot as one status line
func FormatLine(s Snapshot) string {
	pct := 100.0
	if s.BytesPlanned > 0 {
		pct = float64(s.BytesDone) / float64(s.BytesPlanned) * 100
	}
	line := fmt.Sprintf("[progress] %d/%d files, %s / %s (%.0f%%)",
		s.FilesDone, s.FilesPlanned,
		humanize.IBytes(uint64(s.BytesDone)), humanize.IBytes(uint64(s.BytesPlanned)), pct)
	if s.FilesFailed > 0 {
		line += fmt.Sprintf(", %d failed", s.FilesFailed)
	}
	if secs := s.Elapsed.Seconds(); secs >= 1 && s.BytesTransferred > 0 {
		line += fmt.Sprintf(", %s/s", humanize.IBytes(uint64(float64(s.BytesTransferred)/secs)))
	}
	return line
}

// NopReporter keeps counters but never renders
type NopReporter struct {
	inner *LineReporter
}

// Disabled returns a reporter that only counts
func Disabled() *NopReporter {
	return &NopReporter{inner: NewLineReporter(io.Discard, time.Hour)}
}

func (n *NopReporter) OnEvent(taskID string, delta, total int64) { n.inner.OnEvent(taskID, delta, total) }
func (n *NopReporter) OnResume(taskID string, offset, total int64) {
	n.inner.OnResume(taskID, offset, total)
}
func (n *NopReporter) TaskPlanned(task types.DownloadTask)       { n.inner.TaskPlanned(task) }
func (n *NopReporter) TaskFinished(result types.TransferResult)  { n.inner.TaskFinished(result) }
func (n *NopReporter) Start()                                    {}
func (n *NopReporter) Stop()                                     {}
func (n *NopReporter) Snapshot() Snapshot                        { return n.inner.Snapshot() }

var (
	_ Reporter = (*LineReporter)(nil)
	_ Reporter = (*NopReporter)(nil)
)
