package supervisor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	notifier "charge_point_twin/notifier/nats"
)

// Runner runs one charge point session until ctx ends.
type Runner interface {
	Run(ctx context.Context, chargePointID int) error
}

// Fleet starts and cancels sessions on fleet requests. A charge point runs at most once.
type Fleet struct {
	ctx    context.Context
	runner Runner

	mu       sync.Mutex
	sessions map[int]context.CancelFunc
	wg       sync.WaitGroup
}

var _ notifier.FleetHandler = (*Fleet)(nil)

func NewFleet(ctx context.Context, runner Runner) *Fleet {
	return &Fleet{ctx: ctx, runner: runner, sessions: map[int]context.CancelFunc{}}
}

func (f *Fleet) Connect(chargePointID int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	logger := log.WithField("client", chargePointID)
	if _, running := f.sessions[chargePointID]; running {
		logger.Info("session already running")
		return
	}

	ctx, cancel := context.WithCancel(f.ctx)
	f.sessions[chargePointID] = cancel
	f.wg.Add(1)

	go func() {
		defer f.wg.Done()
		defer f.release(chargePointID)

		err := f.runner.Run(ctx, chargePointID)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			logger.Info("session stopped")
		default:
			logger.WithError(err).Warn("session ended")
		}
	}()
}

func (f *Fleet) Disconnect(chargePointID int) {
	f.mu.Lock()
	cancel, running := f.sessions[chargePointID]
	f.mu.Unlock()

	if !running {
		log.WithField("client", chargePointID).Info("no session to disconnect")
		return
	}
	cancel()
}

// Running reports whether a session of chargePointID is active.
func (f *Fleet) Running(chargePointID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, running := f.sessions[chargePointID]

	return running
}

// Wait blocks until every session returned.
func (f *Fleet) Wait() {
	f.wg.Wait()
}

func (f *Fleet) release(chargePointID int) {
	f.mu.Lock()
	if cancel, ok := f.sessions[chargePointID]; ok {
		cancel()
		delete(f.sessions, chargePointID)
	}
	f.mu.Unlock()
}
