package providers

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/providers/tuya"
)

// Logger is the logging interface used by the providers package.
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

const (
	// DefaultResetDelay is how long the success step is shown.
	DefaultResetDelay = 1500 * time.Millisecond

	// DefaultFlowTimeout bounds a whole flow, including the user's login.
	DefaultFlowTimeout = 5 * time.Minute
)

// Options configures a Linker.
type Options struct {
	Alexa       AlexaAccount
	DialTuya    TuyaDialer
	Importer    Importer
	Credentials CredentialStore
	Logger      Logger
	ResetDelay  time.Duration
	FlowTimeout time.Duration
}

// Linker runs the provider connection flow.
//
// A flow moves through these steps:
//  1. select: no flow running
//  2. auth_alexa or auth_tuya: waiting for the provider to accept
//  3. sync: importing the provider's devices
//  4. success, back to select after ResetDelay; or failed, until Dismiss
//
// One flow runs at a time, in the background, so the caller can show each
// step; listeners registered with Subscribe see every transition. The
// Linker is also the device.Actuator for the linked Tuya project.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Every flow carries a generation; Disconnect bumps it so a flow that
//     finishes late changes nothing.
type Linker struct {
	alexa       AlexaAccount
	dialTuya    TuyaDialer
	importer    Importer
	creds       CredentialStore
	logger      Logger
	resetDelay  time.Duration
	flowTimeout time.Duration

	mu      sync.Mutex
	status  Status
	state   string
	gen     int
	running bool
	cancel  context.CancelFunc
	tuya    TuyaAccount

	listenMu  sync.Mutex
	listeners map[int]func(Status)
	nextID    int

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewLinker creates a linker in the select step with no provider linked.
//
// Parameters:
//   - opts: Provider clients, importer and credential store; zero delays
//     take the package defaults
//
// Returns:
//   - *Linker: Idle linker; call Close on shutdown
func NewLinker(opts Options) *Linker {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.ResetDelay <= 0 {
		opts.ResetDelay = DefaultResetDelay
	}
	if opts.FlowTimeout <= 0 {
		opts.FlowTimeout = DefaultFlowTimeout
	}
	if opts.DialTuya == nil {
		opts.DialTuya = func(creds tuya.Credentials) (TuyaAccount, error) {
			c, err := tuya.NewConnector(creds, tuya.Options{})
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return &Linker{
		alexa:       opts.Alexa,
		dialTuya:    opts.DialTuya,
		importer:    opts.Importer,
		creds:       opts.Credentials,
		logger:      opts.Logger,
		resetDelay:  opts.ResetDelay,
		flowTimeout: opts.FlowTimeout,
		status:      Status{Step: StepSelect},
		listeners:   make(map[int]func(Status)),
		done:        make(chan struct{}),
	}
}

// Status returns the current flow state.
func (l *Linker) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// snapshot must be called with mu held.
func (l *Linker) snapshot() Status {
	s := l.status
	s.HubLabel = HubLabel(s.ActiveProvider)
	return s
}

// ActiveProvider returns the linked provider name, or "".
func (l *Linker) ActiveProvider() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status.ActiveProvider
}

// Subscribe registers fn for every status change. The returned function
// removes the listener.
func (l *Linker) Subscribe(fn func(Status)) func() {
	l.listenMu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.listenMu.Unlock()
	return func() {
		l.listenMu.Lock()
		delete(l.listeners, id)
		l.listenMu.Unlock()
	}
}

func (l *Linker) notify(s Status) {
	l.listenMu.Lock()
	fns := make([]func(Status), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.listenMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// begin claims the flow slot. Callers hold mu.
func (l *Linker) begin(ctx context.Context, step Step) (context.Context, context.CancelFunc, int, error) {
	if l.running {
		return nil, nil, 0, ErrLinkInProgress
	}
	l.gen++
	l.running = true
	flowCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.flowTimeout)
	l.cancel = cancel
	l.status = Status{
		ActiveProvider: l.status.ActiveProvider,
		Step:           step,
		Connecting:     true,
	}
	return flowCtx, cancel, l.gen, nil
}

// ConnectAlexa starts the Alexa flow and returns the status carrying the
// authorization URL the user must open.
func (l *Linker) ConnectAlexa(ctx context.Context) (Status, error) {
	if l.alexa == nil {
		return Status{}, fmt.Errorf("providers: %s not configured", Alexa)
	}
	state, err := l.alexa.NewState()
	if err != nil {
		return Status{}, err
	}

	l.mu.Lock()
	flowCtx, cancel, gen, err := l.begin(ctx, StepAuthAlexa)
	if err != nil {
		l.mu.Unlock()
		return Status{}, err
	}
	l.state = state
	l.status.AuthURL = l.alexa.AuthURL(state)
	l.status.Simulated = l.alexa.Simulated()
	s := l.snapshot()
	l.mu.Unlock()

	l.logger.Info("alexa link started", "simulated", s.Simulated)
	l.notify(s)

	l.wg.Add(1)
	go l.run(flowCtx, cancel, gen, func(ctx context.Context) error {
		if err := l.alexa.PollForConnection(ctx); err != nil {
			return fmt.Errorf("waiting for amazon login: %w", err)
		}
		l.advance(gen, StepSync)
		devices, err := l.alexa.SyncDevices(ctx)
		if err != nil {
			return fmt.Errorf("importing alexa devices: %w", err)
		}
		return l.finish(ctx, gen, Alexa, devices, l.alexa.Simulated(), nil)
	})
	return s, nil
}

// CompleteAlexa handles the OAuth callback for the running Alexa flow.
func (l *Linker) CompleteAlexa(ctx context.Context, code, state string) error {
	l.mu.Lock()
	if !l.running || l.status.Step != StepAuthAlexa {
		l.mu.Unlock()
		return ErrNoPendingLink
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(l.state)) != 1 {
		l.mu.Unlock()
		return ErrStateMismatch
	}
	gen := l.gen
	l.mu.Unlock()

	if err := l.alexa.Complete(ctx, code); err != nil {
		l.fail(gen, err)
		return err
	}
	return nil
}

// ConnectTuya validates creds and starts the Tuya flow.
//
// Parameters:
//   - ctx: Parent of the flow context, which also has FlowTimeout
//   - creds: Cloud project access id, secret and region
//
// Returns:
//   - Status: The auth_tuya status the flow starts from
//   - error: A credential validation error or ErrLinkInProgress
func (l *Linker) ConnectTuya(ctx context.Context, creds tuya.Credentials) (Status, error) {
	if err := tuya.ValidateCredentials(creds); err != nil {
		return Status{}, err
	}
	acct, err := l.dialTuya(creds)
	if err != nil {
		return Status{}, err
	}

	l.mu.Lock()
	flowCtx, cancel, gen, err := l.begin(ctx, StepAuthTuya)
	if err != nil {
		l.mu.Unlock()
		return Status{}, err
	}
	s := l.snapshot()
	l.mu.Unlock()

	l.logger.Info("tuya link started", "region", creds.Region)
	l.notify(s)

	l.wg.Add(1)
	go l.run(flowCtx, cancel, gen, func(ctx context.Context) error {
		if err := acct.Connect(ctx); err != nil {
			return err
		}
		l.advance(gen, StepSync)
		devices, err := acct.SyncDevices(ctx)
		if err != nil {
			return fmt.Errorf("importing tuya devices: %w", err)
		}
		return l.finish(ctx, gen, Tuya, devices, acct.Simulated(), func(ctx context.Context) {
			l.mu.Lock()
			l.tuya = acct
			l.mu.Unlock()
			if l.creds == nil {
				return
			}
			if err := l.creds.SaveIntegrationConfig(ctx, Tuya, creds.Map()); err != nil {
				l.logger.Warn("saving tuya credentials", "error", err)
			}
		})
	})
	return s, nil
}

func (l *Linker) run(ctx context.Context, cancel context.CancelFunc, gen int, flow func(context.Context) error) {
	defer l.wg.Done()
	defer cancel()

	if err := flow(ctx); err != nil {
		l.fail(gen, err)
		return
	}

	t := time.NewTimer(l.resetDelay)
	defer t.Stop()
	select {
	case <-t.C:
		l.resetIf(gen, StepSuccess)
	case <-l.done:
	}
}

func (l *Linker) advance(gen int, step Step) {
	l.mu.Lock()
	if l.gen != gen || !l.running {
		l.mu.Unlock()
		return
	}
	l.status.Step = step
	l.status.AuthURL = ""
	s := l.snapshot()
	l.mu.Unlock()
	l.notify(s)
}

func (l *Linker) finish(ctx context.Context, gen int, provider string, devices []device.Device, simulated bool, after func(context.Context)) error {
	l.mu.Lock()
	if l.gen != gen || !l.running {
		l.mu.Unlock()
		l.logger.Debug("dropping import from a cancelled flow", "provider", provider)
		return nil
	}
	// mu stays held across Replace so Disconnect cannot land between the
	// generation check and the import.
	if l.importer != nil {
		if err := l.importer.Replace(ctx, devices, device.SourceImport); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("storing imported devices: %w", err)
		}
	}
	l.running = false
	l.status = Status{
		ActiveProvider: provider,
		Step:           StepSuccess,
		Simulated:      simulated,
		Imported:       len(devices),
	}
	if provider != Tuya {
		l.tuya = nil
	}
	s := l.snapshot()
	l.mu.Unlock()

	if after != nil {
		after(ctx)
	}
	l.logger.Info("provider linked", "provider", provider, "devices", len(devices), "simulated", simulated)
	l.notify(s)
	return nil
}

func (l *Linker) fail(gen int, err error) {
	l.mu.Lock()
	if l.gen != gen || !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	if l.cancel != nil {
		l.cancel()
	}
	l.status.Step = StepFailed
	l.status.Connecting = false
	l.status.AuthURL = ""
	l.status.Error = err.Error()
	s := l.snapshot()
	l.mu.Unlock()

	l.logger.Warn("provider link failed", "error", err)
	l.notify(s)
}

func (l *Linker) resetIf(gen int, from Step) {
	l.mu.Lock()
	if l.gen != gen || l.running || l.status.Step != from {
		l.mu.Unlock()
		return
	}
	l.status.Step = StepSelect
	l.status.Error = ""
	l.status.Imported = 0
	s := l.snapshot()
	l.mu.Unlock()
	l.notify(s)
}

// Dismiss returns a failed flow to the select step.
func (l *Linker) Dismiss() {
	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()
	l.resetIf(gen, StepFailed)
}

// Disconnect cancels any running flow and unlinks the active provider.
// It returns the provider that was linked.
func (l *Linker) Disconnect() string {
	l.mu.Lock()
	prev := l.status.ActiveProvider
	if l.running && l.cancel != nil {
		l.cancel()
	}
	l.gen++
	l.running = false
	l.tuya = nil
	l.status = Status{Step: StepSelect}
	s := l.snapshot()
	l.mu.Unlock()

	if l.alexa != nil {
		l.alexa.Disconnect()
	}
	l.logger.Info("provider disconnected", "provider", prev)
	l.notify(s)
	return prev
}

// Restore reconnects a Tuya project from stored credentials without
// re-importing devices. It does nothing when none are stored.
//
// Returns:
//   - error: A credential read or connect error, or ErrLinkInProgress
func (l *Linker) Restore(ctx context.Context) error {
	if l.creds == nil {
		return nil
	}
	stored, err := l.creds.GetIntegrationConfig(ctx, Tuya)
	if err != nil {
		return fmt.Errorf("loading tuya credentials: %w", err)
	}
	if stored == nil {
		return nil
	}
	creds := tuya.CredentialsFromMap(stored)
	acct, err := l.dialTuya(creds)
	if err != nil {
		return err
	}
	if err := acct.Connect(ctx); err != nil {
		return fmt.Errorf("reconnecting tuya: %w", err)
	}

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrLinkInProgress
	}
	l.tuya = acct
	l.status.ActiveProvider = Tuya
	l.status.Simulated = acct.Simulated()
	s := l.snapshot()
	l.mu.Unlock()

	l.logger.Info("tuya link restored", "simulated", s.Simulated)
	l.notify(s)
	return nil
}

// Handles reports whether d belongs to the linked Tuya project.
func (l *Linker) Handles(d device.Device) bool {
	l.mu.Lock()
	acct := l.tuya
	l.mu.Unlock()
	return acct != nil && acct.Handles(d)
}

// Actuate forwards u to the linked Tuya project.
func (l *Linker) Actuate(ctx context.Context, d device.Device, u device.Update) error {
	l.mu.Lock()
	acct := l.tuya
	l.mu.Unlock()
	if acct == nil {
		return errors.New("providers: no tuya project linked")
	}
	return acct.Actuate(ctx, d, u)
}

// Close cancels any running flow and waits for it to stop.
func (l *Linker) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		if l.cancel != nil {
			l.cancel()
		}
		l.mu.Unlock()
		close(l.done)
	})
	l.wg.Wait()
}
