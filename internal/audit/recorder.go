package audit

import (
	"context"
	"sync"
	"time"

	"github.com/mblarson/omnihome/internal/device"
)

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

const (
	recordTimeout = 5 * time.Second

	// queueSize bounds device entries waiting for the writer.
	queueSize = 256
)

// Recorder writes trail entries without failing the caller. A write error
// is logged and dropped.
//
// Device changes arrive on the store's listener path, which must not block,
// so ObserveDevices only queues the entry:
//  1. The first queued entry starts one writer goroutine.
//  2. The writer stores entries in arrival order.
//  3. Close stops accepting entries and waits for the queue to drain.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - A full queue drops the entry with a warning instead of blocking.
type Recorder struct {
	repo   Repository
	logger Logger

	mu      sync.Mutex
	queue   chan AuditLog
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewRecorder wraps repo.
//
// Parameters:
//   - repo: Destination for trail entries
//   - logger: Receives write failures; may be nil
//
// Returns:
//   - *Recorder: Ready to use; call Close on shutdown
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{repo: repo, logger: logger, queue: make(chan AuditLog, queueSize)}
}

// Record stores entry. ctx cancellation does not abort the write.
func (r *Recorder) Record(ctx context.Context, entry AuditLog) {
	if r == nil || r.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, &entry); err != nil {
		r.logger.Warn("writing audit log failed", "action", entry.Action, "entity_type", entry.EntityType, "error", err)
	}
}

// ObserveDevices queues an entry for a device store change and returns
// without touching the database. Snapshots from the persistence layer are
// not user activity and are skipped. Pass it to device.Store.Subscribe.
func (r *Recorder) ObserveDevices(c device.Change) {
	if c.Source == device.SourceSync {
		return
	}
	entry := AuditLog{Source: c.Source, EntityType: EntityDevice}
	switch c.Kind {
	case device.ChangeUpdated:
		entry.Action = ActionUpdate
	case device.ChangeCreated:
		entry.Action = ActionCreate
	case device.ChangeDeleted:
		entry.Action = ActionDelete
	case device.ChangeReplaced:
		entry.Action = ActionImport
		entry.EntityType = EntityDevices
		entry.Details = map[string]any{"count": len(c.Devices)}
	default:
		return
	}
	if d := c.Device; d != nil {
		entry.EntityID = d.ID
		entry.Details = map[string]any{
			"name":  d.Name,
			"is_on": d.IsOn,
		}
		if d.Value != nil {
			entry.Details["value"] = d.Value
		}
	}
	r.enqueue(entry)
}

func (r *Recorder) enqueue(entry AuditLog) {
	if r == nil || r.repo == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if !r.started {
		r.started = true
		r.wg.Add(1)
		go r.drain()
	}
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit queue full, dropping entry", "action", entry.Action, "entity_id", entry.EntityID)
	}
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for entry := range r.queue {
		r.Record(context.Background(), entry)
	}
}

// Close stops accepting device entries and waits until the queued ones
// are written. It is safe to call more than once.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
