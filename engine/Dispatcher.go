package engine

import (
	"context"
	"sync"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"

	"charge_point_twin/common"
)

// Lifecycle runs the work behind each queued command.
type Lifecycle interface {
	Start(ctx context.Context, transactionID int) error
	Stop(ctx context.Context, transactionID int) error
	SetChargingProfile(connectorID int, profile *types.ChargingProfile) error
}

// Dispatcher takes commands in arrival order and runs each one in its own goroutine.
type Dispatcher struct {
	queue     chan common.Command
	lifecycle Lifecycle
	wg        sync.WaitGroup
	log       *logrus.Entry
}

func NewDispatcher(lifecycle Lifecycle, size int, logger *logrus.Entry) *Dispatcher {
	if size <= 0 {
		size = 1
	}

	return &Dispatcher{
		queue:     make(chan common.Command, size),
		lifecycle: lifecycle,
		log:       logger,
	}
}

// Enqueue blocks while the queue is full.
func (d *Dispatcher) Enqueue(ctx context.Context, cmd common.Command) error {
	select {
	case d.queue <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dispatches commands until ctx ends. Running tasks see the same ctx.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-d.queue:
			d.dispatch(ctx, cmd)
		}
	}
}

// Wait blocks until every dispatched task returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd common.Command) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		switch c := cmd.(type) {
		case common.StartTransaction:
			if err := d.lifecycle.Start(ctx, c.TransactionID); err != nil {
				d.log.WithField("transaction", c.TransactionID).WithError(err).Error("transaction task failed")
			}
		case common.StopTransaction:
			if err := d.lifecycle.Stop(ctx, c.TransactionID); err != nil {
				d.log.WithField("transaction", c.TransactionID).WithError(err).Error("stop request failed")
			}
		case common.SetChargingProfile:
			if err := d.lifecycle.SetChargingProfile(c.ConnectorID, c.Profile); err != nil {
				d.log.WithField("connector", c.ConnectorID).WithError(err).Error("charging profile rejected")
			}
		default:
			d.log.Warnf("no handler for command %s", cmd.CommandName())
		}
	}()
}
