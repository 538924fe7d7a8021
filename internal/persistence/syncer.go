package persistence

import (
	"context"

	"github.com/mblarson/omnihome/internal/device"
)

// Reconciler receives device lists from the persistence layer.
// device.Store implements it.
type Reconciler interface {
	Reconcile(devices []device.Device)
}

// Syncer keeps a Reconciler fed from the adapter's subscription.
//
// The subscription is restarted whenever the adapter re-initialises, so a
// storage configuration change takes effect without a restart. Local-write
// events are applied only in local mode; in remote mode the remote snapshot
// listener already delivers every change.
type Syncer struct {
	adapter *Adapter
	target  Reconciler
	onError func(error)
	logger  Logger
}

// NewSyncer creates a syncer. onError receives subscription errors and may
// be nil.
func NewSyncer(adapter *Adapter, target Reconciler, onError func(error), logger Logger) *Syncer {
	if onError == nil {
		onError = func(error) {}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Syncer{adapter: adapter, target: target, onError: onError, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	restart := make(chan Mode, 1)
	stopReconfig := s.adapter.OnReconfigure(func(m Mode) {
		select {
		case restart <- m:
		default:
		}
	})
	defer stopReconfig()

	stopLocal := s.adapter.ListenLocal(func(devices []device.Device) {
		if s.adapter.Mode() == ModeLocal {
			s.target.Reconcile(devices)
		}
	})
	defer stopLocal()

	for {
		subCtx, cancel := context.WithCancel(ctx)
		mode := s.adapter.Mode()
		s.logger.Info("device subscription started", "mode", mode)
		unsubscribe := s.adapter.SubscribeToDevices(subCtx, s.target.Reconcile, s.onError)

		select {
		case <-ctx.Done():
			unsubscribe()
			cancel()
			return nil
		case m := <-restart:
			unsubscribe()
			cancel()
			s.logger.Info("storage reconfigured, restarting subscription", "mode", m)
		}
	}
}
