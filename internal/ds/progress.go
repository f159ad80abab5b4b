package ds

import (
	"io"
	"sync"
)

// Direction of a transfer.
type Direction string

const (
	DirectionDownload Direction = "download"
	DirectionUpload   Direction = "upload"
)

// Progress is one observation of a running transfer. Percent only increases
// over the life of a transfer and reaches 100 exactly once, on success.
type Progress struct {
	Direction   Direction
	Path        string
	RemoteID    string
	Transferred int64
	Total       int64
	Percent     int
}

// ProgressFunc receives transfer progress. It may be called from several
// goroutines when transfers run in parallel.
type ProgressFunc func(Progress)

// progressTracker turns byte counts into monotonic percentage reports.
type progressTracker struct {
	mu      sync.Mutex
	fn      ProgressFunc
	state   Progress
	started bool
}

func newProgressTracker(fn ProgressFunc, dir Direction, path, remoteID string, total int64) *progressTracker {
	return &progressTracker{
		fn: fn,
		state: Progress{
			Direction: dir,
			Path:      path,
			RemoteID:  remoteID,
			Total:     total,
		},
	}
}

func (p *progressTracker) setTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Total = total
}

func (p *progressTracker) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.emit()
}

// update records the absolute number of bytes transferred so far.
func (p *progressTracker) update(transferred int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if transferred > p.state.Transferred {
		p.state.Transferred = transferred
	}
	if p.state.Total <= 0 {
		return
	}
	pct := int(p.state.Transferred * 100 / p.state.Total)
	// 100 is reserved for finish so a transfer that fails on its last
	// chunk never reports completion.
	if pct > 99 {
		pct = 99
	}
	if pct > p.state.Percent {
		p.state.Percent = pct
		p.emit()
	}
}

func (p *progressTracker) finish(transferred int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if transferred > p.state.Transferred {
		p.state.Transferred = transferred
	}
	if p.state.Total <= 0 {
		p.state.Total = p.state.Transferred
	}
	p.state.Percent = 100
	p.emit()
}

func (p *progressTracker) emit() {
	if p.fn != nil {
		p.fn(p.state)
	}
}

// progressWriter counts bytes written starting at offset.
type progressWriter struct {
	w       io.Writer
	tracker *progressTracker
	offset  int64
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	pw.offset += int64(n)
	pw.tracker.update(pw.offset)
	return n, err
}

// progressReader counts bytes consumed by an upload.
type progressReader struct {
	r       io.Reader
	tracker *progressTracker
	read    int64
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	pr.read += int64(n)
	pr.tracker.update(pr.read)
	return n, err
}
