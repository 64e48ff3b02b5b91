// Package audit fans security events out to one or more sinks. Recording
// never fails or blocks the caller: events are queued for a background
// writer, sink errors are logged, and a full queue drops the event.
package audit

import (
	"context"
	"errors"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/pkg/idx"
	"github.com/aussiebroadwan/authgate/pkg/slogx"
)

const (
	defaultSinkTimeout = 5 * time.Second

	// DefaultBufferSize is the queue length used when none is configured.
	DefaultBufferSize = 1024

	requestIDDetail = "requestId"
)

// Sink persists or forwards one event.
type Sink interface {
	Name() string
	Write(ctx context.Context, e domain.AuditEvent) error
}

type queued struct {
	ctx   context.Context
	event domain.AuditEvent
}

// Recorder queues events and writes them to its sinks from a single
// goroutine, in the order they were recorded.
type Recorder struct {
	Sinks       []Sink
	SinkTimeout time.Duration
	Now         func() time.Time

	queue     chan queued
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewRecorder starts the background writer. A bufferSize below one falls
// back to DefaultBufferSize.
func NewRecorder(bufferSize int, sinks ...Sink) *Recorder {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}

	r := &Recorder{
		Sinks:       sinks,
		SinkTimeout: defaultSinkTimeout,
		Now:         func() time.Time { return time.Now().UTC() },
		queue:       make(chan queued, bufferSize),
		done:        make(chan struct{}),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Record stamps the event with an ID and time when missing, tags it with the
// request ID carried by ctx, and queues it.
// It returns immediately; when the queue is full the event is dropped.
func (r *Recorder) Record(ctx context.Context, e domain.AuditEvent) {
	if r.closed.Load() {
		return
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.Now().UTC()
	}
	if e.ID == "" {
		e.ID = idx.NewAt(e.CreatedAt).String()
	}
	if id := slogx.RequestID(ctx); id != "" && e.Details[requestIDDetail] == "" {
		details := make(map[string]string, len(e.Details)+1)
		maps.Copy(details, e.Details)
		details[requestIDDetail] = id
		e.Details = details
	}

	// The request may already be finishing; only its values travel with the event.
	item := queued{ctx: context.WithoutCancel(ctx), event: e}

	select {
	case r.queue <- item:
	case <-r.done:
	default:
		r.dropped.Add(1)
		slogx.FromContext(ctx).Warn("audit queue full, event dropped",
			"action", e.Action,
			"realm", e.Realm,
			"dropped_total", r.dropped.Load(),
		)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case item := <-r.queue:
			r.write(item)
		case <-r.done:
			for {
				select {
				case item := <-r.queue:
					r.write(item)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(item queued) {
	l := slogx.FromContext(item.ctx)

	for _, s := range r.Sinks {
		sctx, cancel := context.WithTimeout(item.ctx, r.SinkTimeout)
		err := s.Write(sctx, item.event)
		cancel()
		if err != nil {
			l.Warn("audit sink write failed",
				"sink", s.Name(),
				"action", item.event.Action,
				"realm", item.event.Realm,
				"error", err,
			)
		}
	}
}

// Close stops intake, writes whatever is still queued, then closes every
// sink that holds resources. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()

		var errs []error
		for _, s := range r.Sinks {
			if c, ok := s.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
