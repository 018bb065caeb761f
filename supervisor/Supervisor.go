// Package supervisor runs the session of a charge point for as long as its CSMS connection lives.
package supervisor

import (
	"context"
	"strconv"
	"time"

	"github.com/michalkurzeja/go-clock"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"charge_point_twin/actions"
	"charge_point_twin/backend"
	"charge_point_twin/backoff"
	"charge_point_twin/chargepoint"
	"charge_point_twin/engine"
	notifier "charge_point_twin/notifier/nats"
	"charge_point_twin/station"
)

// Backend is everything a session reads from and writes to the system of record.
type Backend interface {
	engine.Backend
	actions.Backend
	GetChargePoint(ctx context.Context, id int) (*backend.ChargePoint, error)
	GetConfiguration(ctx context.Context, id int) (map[string]interface{}, error)
	UpdateChargePointStatus(ctx context.Context, id int, status chargepoint.Status) error
	UpdateHeartbeat(ctx context.Context, id int, at time.Time) error
	ConsumeQuota(ctx context.Context, quotaID int, cost float64) error
}

// Commands opens the command subscription of a charge point. close releases it.
type Commands func(chargePointID int) (subscription notifier.Subscription, close func(), err error)

type Options struct {
	StepDelay      time.Duration
	MeterTick      time.Duration
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	QueueSize      int
	// TokenInterval is how often quota is consumed; the cost is charged per minute.
	TokenInterval time.Duration
	// BootRetry is used when the CSMS rejects a boot without an interval.
	BootRetry time.Duration
}

type Supervisor struct {
	backend    Backend
	commands   Commands
	options    Options
	newStation func(*chargepoint.ChargePoint, *logrus.Entry) (station.Station, error)
}

func New(b Backend, commands Commands, options Options) *Supervisor {
	if options.TokenInterval <= 0 {
		options.TokenInterval = time.Minute
	}
	if options.BootRetry <= 0 {
		options.BootRetry = 10 * time.Second
	}
	if options.PollTimeout <= 0 {
		options.PollTimeout = time.Second
	}

	return &Supervisor{backend: b, commands: commands, options: options, newStation: station.New}
}

// NatsCommands opens command subscriptions on conn.
func NatsCommands(conn *nats.Conn) Commands {
	return func(chargePointID int) (notifier.Subscription, func(), error) {
		sub, err := notifier.SubscribeCommands(conn, chargePointID)
		if err != nil {
			return nil, nil, err
		}

		return sub, func() { _ = sub.Unsubscribe() }, nil
	}
}

func logDefault(chargePointId string, component string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"client": chargePointId, "message": component})
}

// Load reads the charge point record and its OCPP configuration into a new session.
func (s *Supervisor) Load(ctx context.Context, id int) (*chargepoint.ChargePoint, error) {
	record, err := s.backend.GetChargePoint(ctx, id)
	if err != nil {
		return nil, err
	}

	configuration := chargepoint.NewConfiguration()
	if record.OcppConfigurationV16ID != nil {
		values, err := s.backend.GetConfiguration(ctx, *record.OcppConfigurationV16ID)
		if err != nil {
			return nil, err
		}
		if err := configuration.Load(values); err != nil {
			return nil, errors.Wrapf(err, "charge point %d configuration", id)
		}
		configuration.ID = *record.OcppConfigurationV16ID
	}

	return record.Session(configuration), nil
}

// Run serves charge point id until ctx ends or the CSMS connection drops. It never reconnects.
func (s *Supervisor) Run(ctx context.Context, id int) error {
	session, err := s.Load(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "failed to load charge point %d", id)
	}
	logger := logDefault(session.CID, "session")

	st, err := s.newStation(session, logger)
	if err != nil {
		return err
	}
	deps := actions.Dependencies{
		ChargePoint: session,
		Station:     st,
		Backend:     s.backend,
		Timeout:     s.options.RequestTimeout,
	}
	switch adapter := st.(type) {
	case *station.V16:
		deps.Registry = adapter.Registry()
		adapter.SetHandler(actions.NewV16(deps))
	case *station.V201:
		deps.Registry = adapter.Registry()
		adapter.SetHandler(actions.NewV201(deps))
	}

	subscription, closeCommands, err := s.commands(id)
	if err != nil {
		return err
	}
	defer closeCommands()

	if err := st.Connect(); err != nil {
		return err
	}
	defer st.Stop()

	lifecycle := engine.New(session, st, s.backend, engine.Options{StepDelay: s.options.StepDelay, Tick: s.options.MeterTick}, logger)
	dispatcher := engine.NewDispatcher(lifecycle, s.options.QueueSize, logger)
	consumer := notifier.NewConsumer(subscription, dispatcher, s.options.PollTimeout, logger.WithField("message", "commands"))
	booted := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-st.Disconnected():
			return station.ErrDisconnected
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error { return s.boot(gctx, session, st, booted) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return s.heartbeat(gctx, session, st, booted) })
	g.Go(func() error { return s.tokens(gctx, session) })

	err = g.Wait()
	dispatcher.Wait()
	logger.WithError(err).Info("session ended")

	return err
}

// boot sends BootNotification until the CSMS accepts it, then marks the whole topology available.
func (s *Supervisor) boot(ctx context.Context, session *chargepoint.ChargePoint, st station.Station, booted chan<- struct{}) error {
	logger := logDefault(session.CID, "BootNotification")

	for {
		accepted, interval, err := st.BootNotification()
		if err != nil {
			logger.WithError(err).Warn("boot notification failed")
		}
		if accepted {
			if interval > 0 {
				if err := session.Configuration.Set(chargepoint.KeyHeartbeatInterval, durationSeconds(interval)); err != nil {
					logger.WithError(err).Warn("heartbeat interval not applied")
				}
			}
			break
		}
		if interval <= 0 {
			interval = s.options.BootRetry
		}
		logger.Infof("boot not accepted, retrying in %s", interval)
		if err := backoff.Sleep(ctx, interval); err != nil {
			return nil
		}
	}
	logger.Info("boot accepted")

	topology := session.MarkAvailable()
	close(booted)

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout())
	defer cancel()

	if err := s.backend.UpdateChargePointStatus(ctx, session.ID, chargepoint.StatusAvailable); err != nil {
		logger.WithError(err).Warn("failed to store charge point status")
	}
	for _, id := range topology.EvseIDs {
		if err := s.backend.UpdateEvseStatus(ctx, id, chargepoint.EvseStatusAvailable, nil); err != nil {
			logger.WithError(err).Warn("failed to store evse status")
		}
	}
	for _, id := range topology.ConnectorIDs {
		if err := s.backend.UpdateConnectorStatus(ctx, id, chargepoint.ConnectorStatusAvailable); err != nil {
			logger.WithError(err).Warn("failed to store connector status")
		}
	}

	return nil
}

// heartbeat reads HeartbeatInterval before every beat so configuration changes apply at once.
func (s *Supervisor) heartbeat(ctx context.Context, session *chargepoint.ChargePoint, st station.Station, booted <-chan struct{}) error {
	logger := logDefault(session.CID, "Heartbeat")

	select {
	case <-booted:
	case <-ctx.Done():
		return nil
	}

	for {
		interval := time.Duration(session.Configuration.Int(chargepoint.KeyHeartbeatInterval)) * time.Second
		if interval <= 0 {
			interval = time.Minute
		}
		if err := backoff.Sleep(ctx, interval); err != nil {
			return nil
		}

		if err := st.Heartbeat(); err != nil {
			logger.WithError(err).Warn("heartbeat failed")
			continue
		}
		now := clock.Now()
		session.SetLastHeartbeat(now)

		reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout())
		if err := s.backend.UpdateHeartbeat(reqCtx, session.ID, now); err != nil {
			logger.WithError(err).Warn("failed to store heartbeat")
		}
		cancel()
	}
}

// tokens charges the quota of the charge point owner while the session runs.
func (s *Supervisor) tokens(ctx context.Context, session *chargepoint.ChargePoint) error {
	if session.QuotaID == nil || session.TokenCostPerMinute <= 0 {
		<-ctx.Done()
		return nil
	}
	logger := logDefault(session.CID, "tokens")
	cost := session.TokenCostPerMinute * s.options.TokenInterval.Minutes()

	for {
		if err := backoff.Sleep(ctx, s.options.TokenInterval); err != nil {
			return nil
		}

		reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout())
		if err := s.backend.ConsumeQuota(reqCtx, *session.QuotaID, cost); err != nil {
			logger.WithError(err).Warn("failed to consume quota")
		}
		cancel()
	}
}

func (s *Supervisor) requestTimeout() time.Duration {
	if s.options.RequestTimeout <= 0 {
		return 10 * time.Second
	}

	return s.options.RequestTimeout
}

func durationSeconds(d time.Duration) string {
	return strconv.Itoa(int(d / time.Second))
}
