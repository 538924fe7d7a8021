package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger is the logging interface used by the device package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Mirror receives every change after it has been applied in memory.
// The persistence adapter implements it.
type Mirror interface {
	SaveDevices(ctx context.Context, devices []Device) error
	UpdateDevice(ctx context.Context, u Update) error
	CreateDevice(ctx context.Context, d Device) error
	DeleteDevice(ctx context.Context, id string) error
}

// Actuator forwards state changes to the physical device, for records
// imported from a provider that accepts commands.
type Actuator interface {
	Handles(d Device) bool
	Actuate(ctx context.Context, d Device, u Update) error
}

// ChangeKind identifies what happened to the list.
type ChangeKind string

// Change kinds.
const (
	ChangeUpdated  ChangeKind = "updated"
	ChangeReplaced ChangeKind = "replaced"
	ChangeCreated  ChangeKind = "created"
	ChangeDeleted  ChangeKind = "deleted"
)

// Source labels for changes.
const (
	SourceUser   = "user"
	SourceSync   = "sync"
	SourceVoice  = "voice"
	SourceScene  = "scene"
	SourceMQTT   = "mqtt"
	SourceImport = "import"
)

// Change is delivered to store listeners. Device is set for single-device
// kinds; Devices holds the full list for ChangeReplaced.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	Device  *Device    `json:"device,omitempty"`
	Devices []Device   `json:"devices,omitempty"`
	Source  string     `json:"source"`
}

const defaultMirrorTimeout = 15 * time.Second

// Store holds the live device list.
//
// Writes are optimistic: the in-memory list changes and listeners are told
// immediately, then the change is mirrored to persistence in the background.
// A failed mirror write is logged and reported, never rolled back; the next
// snapshot from the persistence layer wins.
//
// Mirror writes:
//  1. are queued in the order the in-memory changes were made
//  2. run one at a time on a single goroutine, so the last write wins in
//     persistence as it does in memory
//  3. hold back snapshots delivered to Reconcile until the queue is empty
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Listeners run on the writer's goroutine and must not block.
type Store struct {
	mu      sync.RWMutex
	devices []Device
	loaded  bool

	listenMu  sync.Mutex
	listeners map[int]func(Change)
	nextID    int

	mirror        Mirror
	actuators     []Actuator
	onMirrorError func(error)
	mirrorTimeout time.Duration
	logger        Logger

	// Mirror writes run in submission order on one goroutine. A snapshot
	// that arrives while writes are queued is held in deferred and applied
	// once the queue drains, so an echo of an older write cannot undo a
	// newer optimistic change.
	queueMu     sync.Mutex
	queue       []mirrorJob
	draining    bool
	deferred    []Device
	hasDeferred bool
	inflight    sync.WaitGroup
}

type mirrorJob struct {
	ctx context.Context
	op  string
	fn  func(context.Context) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithActuator registers an actuator for provider-backed devices.
func WithActuator(a Actuator) Option {
	return func(s *Store) { s.actuators = append(s.actuators, a) }
}

// WithMirrorErrorHandler is called with every failed background write.
func WithMirrorErrorHandler(fn func(error)) Option {
	return func(s *Store) { s.onMirrorError = fn }
}

// WithMirrorTimeout bounds each background write.
func WithMirrorTimeout(d time.Duration) Option {
	return func(s *Store) { s.mirrorTimeout = d }
}

// NewStore creates an empty, not yet loaded store.
//
// Parameters:
//   - mirror: Persistence for background writes; nil keeps changes in memory
//   - opts: Logger, actuators, mirror error handler and timeout
//
// Returns:
//   - *Store: Empty store; Loaded reports false until Load or Reconcile
func NewStore(mirror Mirror, opts ...Option) *Store {
	s := &Store{
		devices:       []Device{},
		listeners:     make(map[int]func(Change)),
		mirror:        mirror,
		onMirrorError: func(error) {},
		mirrorTimeout: defaultMirrorTimeout,
		logger:        noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddActuator registers an actuator after construction.
func (s *Store) AddActuator(a Actuator) {
	s.mu.Lock()
	s.actuators = append(s.actuators, a)
	s.mu.Unlock()
}

// Devices returns a copy of the list.
func (s *Store) Devices() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneList(s.devices)
}

// Get returns a device by id.
func (s *Store) Get(id string) (Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return Device{}, ErrDeviceNotFound
	}
	return s.devices[i], nil
}

// Find returns the first device whose name or room contains query.
func (s *Store) Find(query string) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FindByName(s.devices, query)
}

// Loaded reports whether the first snapshot has arrived.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Stats summarises the list.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputeStats(s.devices)
}

// Rooms groups the list by room.
func (s *Store) Rooms() []Room {
	return GroupByRoom(s.Devices())
}

// Load sets the initial list immediately, regardless of queued writes.
func (s *Store) Load(devices []Device) {
	s.apply(cloneList(devices))
}

// Reconcile replaces the list with a snapshot from persistence. It is the
// subscription callback and never mirrors back.
//
// While mirror writes are queued the snapshot may predate them, so it is
// held and only the newest held snapshot is applied after the last write
// finishes.
func (s *Store) Reconcile(devices []Device) {
	list := cloneList(devices)

	// Writers enqueue while holding mu, so checking the queue under mu
	// cannot miss a write that has already changed the list.
	s.mu.Lock()
	s.queueMu.Lock()
	if s.draining {
		s.deferred = list
		s.hasDeferred = true
		s.queueMu.Unlock()
		s.mu.Unlock()
		s.logger.Debug("snapshot held until pending writes finish", "count", len(list))
		return
	}
	s.queueMu.Unlock()
	s.devices = list
	s.loaded = true
	s.mu.Unlock()

	s.reconciled(list)
}

func (s *Store) apply(list []Device) {
	s.mu.Lock()
	s.devices = list
	s.loaded = true
	s.mu.Unlock()

	s.reconciled(list)
}

func (s *Store) reconciled(list []Device) {
	s.logger.Debug("device list reconciled", "count", len(list))
	s.notify(Change{Kind: ChangeReplaced, Devices: cloneList(list), Source: SourceSync})
}

// Update applies u optimistically and mirrors it in the background.
//
// Parameters:
//   - ctx: Carried to the mirror write without its cancellation
//   - u: Fields to change; absent fields are kept
//   - source: Who made the change, e.g. SourceUser or SourceVoice
//
// Returns:
//   - Device: The device as it now stands in memory
//   - error: ErrEmptyUpdate, ErrInvalidValue or ErrDeviceNotFound
func (s *Store) Update(ctx context.Context, u Update, source string) (Device, error) {
	if u.Empty() {
		return Device{}, ErrEmptyUpdate
	}
	if err := ValidateValue(u.Value); err != nil {
		return Device{}, err
	}
	return s.mutate(ctx, u.ID, source, func(Device) Update { return u })
}

// Toggle flips IsOn. It is Update with the negated current state, so two
// quick toggles land in persistence in the order they were made.
func (s *Store) Toggle(ctx context.Context, id, source string) (Device, error) {
	return s.mutate(ctx, id, source, func(d Device) Update {
		return Update{ID: id, IsOn: Bool(!d.IsOn)}
	})
}

func (s *Store) mutate(ctx context.Context, id, source string, build func(Device) Update) (Device, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	u := build(s.devices[i])
	next := Apply(s.devices[i], u)
	next.UpdatedAt = time.Now().UTC()
	s.devices[i] = next
	actuators := s.actuatorsFor(next)
	s.background(ctx, "update", func(ctx context.Context) error {
		for _, a := range actuators {
			if err := a.Actuate(ctx, next, u); err != nil {
				s.logger.Warn("actuating device failed", "device_id", next.ID, "error", err)
			}
		}
		if s.mirror == nil {
			return nil
		}
		return s.mirror.UpdateDevice(ctx, u)
	})
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpdated, Device: &next, Source: source})
	return next, nil
}

// Replace swaps the whole list, as after a provider import, and mirrors
// the new list.
func (s *Store) Replace(ctx context.Context, devices []Device, source string) error {
	list := cloneList(devices)
	if err := ValidateList(list); err != nil {
		return err
	}
	s.mu.Lock()
	s.devices = list
	s.loaded = true
	s.background(ctx, "save", func(ctx context.Context) error {
		if s.mirror == nil {
			return nil
		}
		return s.mirror.SaveDevices(ctx, cloneList(list))
	})
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReplaced, Devices: cloneList(list), Source: source})
	return nil
}

// Create adds a device, generating an id when empty.
//
// Parameters:
//   - ctx: Carried to the mirror write without its cancellation
//   - d: New device; Provider defaults to ProviderLocal
//   - source: Who made the change
//
// Returns:
//   - Device: The stored device with id and timestamp set
//   - error: A validation error or ErrDeviceExists
func (s *Store) Create(ctx context.Context, d Device, source string) (Device, error) {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if d.Provider == "" {
		d.Provider = ProviderLocal
	}
	d.Value = NormalizeValue(d.Value)
	d.UpdatedAt = time.Now().UTC()
	if err := ValidateDevice(&d); err != nil {
		return Device{}, err
	}

	s.mu.Lock()
	if s.indexOf(d.ID) >= 0 {
		s.mu.Unlock()
		return Device{}, ErrDeviceExists
	}
	s.devices = append(s.devices, d)
	s.background(ctx, "create", func(ctx context.Context) error {
		if s.mirror == nil {
			return nil
		}
		return s.mirror.CreateDevice(ctx, d)
	})
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCreated, Device: &d, Source: source})
	return d, nil
}

// Delete removes a device.
func (s *Store) Delete(ctx context.Context, id, source string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	removed := s.devices[i]
	s.devices = append(s.devices[:i:i], s.devices[i+1:]...)
	s.background(ctx, "delete", func(ctx context.Context) error {
		if s.mirror == nil {
			return nil
		}
		return s.mirror.DeleteDevice(ctx, id)
	})
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeDeleted, Device: &removed, Source: source})
	return nil
}

// Subscribe registers fn for every change. Listeners run synchronously on
// the writer's goroutine and must not block. The returned function removes
// the listener.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.listenMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenMu.Unlock()

	return func() {
		s.listenMu.Lock()
		delete(s.listeners, id)
		s.listenMu.Unlock()
	}
}

// Wait blocks until the mirror queue has drained, including any snapshot
// held back while it was busy.
func (s *Store) Wait() {
	s.inflight.Wait()
}

func (s *Store) notify(c Change) {
	s.listenMu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// background queues a mirror write. Callers hold mu so queue order matches
// the order of in-memory changes. The write runs detached from the caller's
// cancellation so an HTTP request finishing does not abort it.
func (s *Store) background(ctx context.Context, op string, fn func(context.Context) error) {
	s.inflight.Add(1)
	s.queueMu.Lock()
	s.queue = append(s.queue, mirrorJob{ctx: context.WithoutCancel(ctx), op: op, fn: fn})
	start := !s.draining
	s.draining = true
	s.queueMu.Unlock()

	if start {
		go s.drain()
	}
}

// drain runs queued writes in order until the queue is empty, then applies
// the newest snapshot held back in the meantime.
func (s *Store) drain() {
	for {
		s.queueMu.Lock()
		job := s.queue[0]
		s.queue[0] = mirrorJob{}
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		s.run(job)

		s.queueMu.Lock()
		if len(s.queue) > 0 {
			s.queueMu.Unlock()
			s.inflight.Done()
			continue
		}
		s.draining = false
		snapshot, held := s.deferred, s.hasDeferred
		s.deferred, s.hasDeferred = nil, false
		s.queueMu.Unlock()

		if held {
			s.apply(snapshot)
		}
		s.inflight.Done()
		return
	}
}

func (s *Store) run(job mirrorJob) {
	ctx, cancel := context.WithTimeout(job.ctx, s.mirrorTimeout)
	defer cancel()
	if err := job.fn(ctx); err != nil {
		s.logger.Error("mirroring device change failed", "op", job.op, "error", err)
		s.onMirrorError(fmt.Errorf("%s: %w", job.op, err))
	}
}

func (s *Store) actuatorsFor(d Device) []Actuator {
	var out []Actuator
	for _, a := range s.actuators {
		if a.Handles(d) {
			out = append(out, a)
		}
	}
	return out
}

// indexOf must be called with mu held.
func (s *Store) indexOf(id string) int {
	for i := range s.devices {
		if s.devices[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneList(devices []Device) []Device {
	out := make([]Device, len(devices))
	copy(out, devices)
	return out
}
