package diag

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Report is one recorded failure.
type Report struct {
	Time  time.Time
	Frame uint64
	Err   *Error
}

// ReporterOptions configures a Reporter.
type ReporterOptions struct {
	RingSize       int
	LoudPerSecond  float64
	FinalBuild     bool
	LoudBufferSize int
}

// Reporter records failures. Safe for concurrent use.
type Reporter struct {
	log   *zap.Logger
	final bool

	mu    sync.Mutex
	ring  []Report
	next  int
	count int
	frame uint64

	limiter *rate.Limiter
	loud    chan Report
	dropped uint64
}

// NewReporter creates a reporter. A nil logger logs nowhere.
func NewReporter(log *zap.Logger, opts ReporterOptions) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RingSize <= 0 {
		opts.RingSize = 256
	}
	if opts.LoudBufferSize <= 0 {
		opts.LoudBufferSize = 32
	}
	limit := rate.Inf
	if opts.LoudPerSecond > 0 {
		limit = rate.Limit(opts.LoudPerSecond)
	}
	return &Reporter{
		log:     log,
		final:   opts.FinalBuild,
		ring:    make([]Report, opts.RingSize),
		limiter: rate.NewLimiter(limit, 1),
		loud:    make(chan Report, opts.LoudBufferSize),
	}
}

// SetFrame stamps subsequent reports with a frame number.
func (r *Reporter) SetFrame(frame uint64) {
	r.mu.Lock()
	r.frame = frame
	r.mu.Unlock()
}

// Report records err. Errors that are not *Error are recorded as
// malformed-tree with High severity.
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}
	var de *Error
	if !errors.As(err, &de) {
		de = New(ReasonMalformedTree, SeverityHigh, err)
	}

	r.mu.Lock()
	rep := Report{Time: time.Now(), Frame: r.frame, Err: de}
	r.ring[r.next] = rep
	r.next = (r.next + 1) % len(r.ring)
	if r.count < len(r.ring) {
		r.count++
	}
	r.mu.Unlock()

	if r.final || de.Severity == SeverityLow {
		return
	}

	fields := []zap.Field{
		zap.String("reason", string(de.Reason)),
		zap.String("character", de.Character),
		zap.String("gesture", de.Gesture),
		zap.Uint64("frame", rep.Frame),
	}
	if de.Err != nil {
		fields = append(fields, zap.Error(de.Err))
	}

	if de.Severity == SeverityNormal {
		r.log.Warn("animation failure", fields...)
		return
	}

	r.log.Error("animation failure", fields...)
	if !r.limiter.Allow() {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		return
	}
	select {
	case r.loud <- rep:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

// Recent returns the buffered reports, oldest first.
func (r *Reporter) Recent() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Report, 0, r.count)
	start := (r.next - r.count + len(r.ring)) % len(r.ring)
	for i := 0; i < r.count; i++ {
		out = append(out, r.ring[(start+i)%len(r.ring)])
	}
	return out
}

// Loud is the user-visible channel of High severity reports.
func (r *Reporter) Loud() <-chan Report {
	return r.loud
}

// Dropped counts loud reports discarded by throttling or a full channel.
func (r *Reporter) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
