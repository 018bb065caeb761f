// Package engine drives simulated charging sessions from start to finish.
package engine

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/michalkurzeja/go-clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"charge_point_twin/backend"
	"charge_point_twin/backoff"
	"charge_point_twin/chargepoint"
	"charge_point_twin/station"
)

const IdTagPrefix = "VID:"

var (
	ErrConnectorBusy = errors.New("connector already has a transaction in progress")
	ErrNoBattery     = errors.New("vehicle has no battery capacity")
)

// Backend is the part of the system of record the engine reads and writes.
type Backend interface {
	GetTransaction(ctx context.Context, id int) (*backend.Transaction, error)
	UpdateTransaction(ctx context.Context, id int, update backend.TransactionUpdate) error
	GetVehicle(ctx context.Context, id int) (*backend.Vehicle, error)
	UpdateVehicleSoc(ctx context.Context, id int, soc int) error
	UpdateVehicleStatus(ctx context.Context, id int, status backend.VehicleStatus) error
	UpdateEvseStatus(ctx context.Context, id int, status chargepoint.EvseStatus, activeConnector *int) error
	UpdateConnectorStatus(ctx context.Context, id int, status chargepoint.ConnectorStatus) error
	UpdateConnector(ctx context.Context, id int, update backend.ConnectorUpdate) error
}

type Options struct {
	// StepDelay separates the visible steps of a session.
	StepDelay time.Duration
	// Tick is how often a charging connector looks for a stop request.
	Tick time.Duration
}

type Engine struct {
	session *chargepoint.ChargePoint
	station station.Station
	backend Backend
	options Options
	log     *logrus.Entry
}

func New(session *chargepoint.ChargePoint, st station.Station, b Backend, options Options, logger *logrus.Entry) *Engine {
	if options.Tick <= 0 {
		options.Tick = time.Second
	}

	return &Engine{session: session, station: st, backend: b, options: options, log: logger}
}

// run is the state of one transaction task.
type run struct {
	transactionID int
	vehicle       *backend.Vehicle
	evse          int
	connector     int
	idTag         string
	protocolID    string
	initialSoc    float64
	log           *logrus.Entry
}

// Start runs a whole charging session for the record transaction. It returns when the
// session finished, failed or ctx ended.
func (e *Engine) Start(ctx context.Context, transactionID int) error {
	r := &run{transactionID: transactionID, log: e.log.WithField("transaction", transactionID)}

	if err := e.prepare(ctx, r); err != nil {
		return errors.Wrapf(err, "transaction %d", transactionID)
	}
	e.authorize(r)
	if err := e.startTransaction(ctx, r); err != nil {
		return errors.Wrapf(err, "transaction %d", transactionID)
	}
	if err := e.startCharging(ctx, r); err != nil {
		return errors.Wrapf(err, "transaction %d", transactionID)
	}
	if err := e.charge(ctx, r); err != nil {
		return errors.Wrapf(err, "transaction %d", transactionID)
	}
	if err := e.finish(ctx, r); err != nil {
		return errors.Wrapf(err, "transaction %d", transactionID)
	}
	r.log.Info("transaction completed")

	return nil
}

// Stop asks the task owning the record transaction to finish at its next tick.
func (e *Engine) Stop(ctx context.Context, transactionID int) error {
	transaction, err := e.backend.GetTransaction(ctx, transactionID)
	if err != nil {
		return errors.Wrapf(err, "transaction %d", transactionID)
	}
	if finished(transaction.Status) {
		e.log.WithField("transaction", transactionID).Infof("stop ignored, transaction is %s", transaction.Status)
		return nil
	}
	evse, connector, err := e.session.LocateByRecordID(transaction.ConnectorID)
	if err != nil {
		return errors.Wrapf(err, "transaction %d", transactionID)
	}

	var busy bool
	_, err = e.session.UpdateConnector(evse, connector, func(c *chargepoint.Connector) {
		if c.TransactionID != nil && *c.TransactionID != transactionID {
			busy = true
			return
		}
		c.QueuedAction = chargepoint.QueuedActionStopCharging
	})
	if err != nil {
		return err
	}
	if busy {
		return errors.Wrapf(ErrConnectorBusy, "transaction %d is not running on connector %d", transactionID, transaction.ConnectorID)
	}
	e.log.WithField("transaction", transactionID).Info("stop requested")

	return nil
}

// finished reports whether a record transaction can no longer be charging.
// A stop for a pending or accepted transaction is kept for the task that will claim the connector.
func finished(status backend.TransactionStatus) bool {
	switch status {
	case backend.TransactionStatusCompleted, backend.TransactionStatusAborted,
		backend.TransactionStatusFaulted, backend.TransactionStatusRejected:
		return true
	}

	return false
}

// SetChargingProfile installs a profile on a protocol connector id.
func (e *Engine) SetChargingProfile(connectorID int, profile *types.ChargingProfile) error {
	return e.session.AddChargingProfile(connectorID, profile)
}

func (e *Engine) prepare(ctx context.Context, r *run) error {
	transaction, err := e.backend.GetTransaction(ctx, r.transactionID)
	if err != nil {
		return err
	}
	vehicle, err := e.backend.GetVehicle(ctx, transaction.VehicleID)
	if err != nil {
		return err
	}
	if vehicle.BatteryCapacity <= 0 {
		return errors.Wrapf(ErrNoBattery, "vehicle %d", vehicle.ID)
	}
	r.vehicle = vehicle
	r.idTag = IdTagPrefix + vehicle.IdTagSuffix
	r.initialSoc = vehicle.Soc
	e.soft(r, e.backend.UpdateVehicleStatus(ctx, vehicle.ID, backend.VehicleStatusCharging), "vehicle status")

	r.evse, r.connector, err = e.session.LocateByRecordID(transaction.ConnectorID)
	if err != nil {
		return err
	}

	var busy bool
	connector, err := e.session.UpdateConnector(r.evse, r.connector, func(c *chargepoint.Connector) {
		if c.ProtocolTransactionID != "" || (c.TransactionID != nil && *c.TransactionID != r.transactionID) {
			busy = true
			return
		}
		id, vehicleID := r.transactionID, vehicle.ID
		c.TransactionID = &id
		c.VehicleID = &vehicleID
		c.Status = chargepoint.ConnectorStatusPreparing
	})
	if err != nil {
		return err
	}
	if busy {
		return errors.Wrapf(ErrConnectorBusy, "connector %d", connector.ID)
	}

	localID := connector.ConnectorID
	evse, err := e.session.UpdateEvse(r.evse, chargepoint.EvseStatusBusy, &localID)
	if err != nil {
		return err
	}
	e.soft(r, e.backend.UpdateEvseStatus(ctx, evse.ID, evse.Status, evse.ActiveConnectorID), "evse status")
	if err := e.pause(ctx); err != nil {
		return err
	}

	if err := e.station.StatusNotification(r.evse, r.connector, chargepoint.ConnectorStatusPreparing); err != nil {
		return err
	}
	e.soft(r, e.backend.UpdateConnectorStatus(ctx, connector.ID, chargepoint.ConnectorStatusPreparing), "connector status")

	return e.pause(ctx)
}

// authorize never fails the session: a refused or failed authorization is only logged.
func (e *Engine) authorize(r *run) {
	config := e.session.Configuration
	if config.Bool(chargepoint.KeyLocalAuthListEnabled) {
		if status, ok := e.session.LocalList.Status(r.idTag); ok && status == types.AuthorizationStatusAccepted {
			r.log.WithField("id_tag", r.idTag).Debug("authorized by local list")
			return
		}
	}
	if config.Bool(chargepoint.KeyAuthorizationCacheEnabled) {
		if status, ok := e.session.CachedAuthorization(r.idTag); ok && status == types.AuthorizationStatusAccepted {
			r.log.WithField("id_tag", r.idTag).Debug("authorized by cache")
			return
		}
	}

	status, err := e.station.Authorize(r.idTag)
	if err != nil {
		r.log.WithError(err).Warn("authorize failed, continuing")
		return
	}
	e.session.CacheAuthorization(r.idTag, status)
	if status != types.AuthorizationStatusAccepted {
		r.log.WithField("id_tag", r.idTag).Warnf("id tag %s, continuing", status)
	}
}

func (e *Engine) startTransaction(ctx context.Context, r *run) error {
	connector, err := e.session.Connector(r.evse, r.connector)
	if err != nil {
		return err
	}

	start := station.Start{
		Evse:       r.evse,
		Connector:  r.connector,
		IdTag:      r.idTag,
		MeterStart: int(connector.TotalEnergy),
	}
	flat, err := e.session.ToFlat(r.evse, r.connector)
	if err != nil {
		return err
	}
	reservation, reserved := e.session.Reservations.Find(r.idTag, flat, clock.Now())
	if reserved {
		id := reservation.ReservationID
		start.ReservationID = &id
	}

	r.protocolID, err = e.station.StartTransaction(start)
	if err != nil {
		return err
	}
	if reserved {
		e.session.Reservations.Cancel(reservation.ReservationID)
	}
	r.log = r.log.WithField("protocol_transaction", r.protocolID)

	status := backend.TransactionStatusAccepted
	update := backend.TransactionUpdate{Status: &status}
	if id, err := strconv.Atoi(r.protocolID); err == nil {
		update.Transactionid = &id
	}
	e.soft(r, e.backend.UpdateTransaction(ctx, r.transactionID, update), "transaction accepted")

	return nil
}

func (e *Engine) startCharging(ctx context.Context, r *run) error {
	power := e.session.MaximumDCPower
	voltage := e.session.VoltageDC

	connector, err := e.session.UpdateConnector(r.evse, r.connector, func(c *chargepoint.Connector) {
		c.ProtocolTransactionID = r.protocolID
		c.IdTag = r.idTag
		c.CurrentPower = power
		c.CurrentCurrent = current(power, voltage)
		c.CurrentVoltage = voltage
		c.CurrentEnergy = 0
		c.Soc = int(r.initialSoc)
	})
	if err != nil {
		return err
	}
	e.soft(r, e.backend.UpdateConnector(ctx, connector.ID, connectorUpdate(connector)), "connector values")
	if err := e.pause(ctx); err != nil {
		return err
	}

	if err := e.station.StatusNotification(r.evse, r.connector, chargepoint.ConnectorStatusCharging); err != nil {
		return err
	}
	if _, err := e.session.UpdateConnector(r.evse, r.connector, func(c *chargepoint.Connector) {
		c.Status = chargepoint.ConnectorStatusCharging
	}); err != nil {
		return err
	}
	e.soft(r, e.backend.UpdateConnectorStatus(ctx, connector.ID, chargepoint.ConnectorStatusCharging), "connector status")
	if err := e.pause(ctx); err != nil {
		return err
	}

	status := backend.TransactionStatusRunning
	e.soft(r, e.backend.UpdateTransaction(ctx, r.transactionID, backend.TransactionUpdate{Status: &status}), "transaction charging")

	return nil
}

func (e *Engine) charge(ctx context.Context, r *run) error {
	interval := e.session.Configuration.Int(chargepoint.KeyMeterValueSampleInterval)
	if interval <= 0 {
		interval = 1
	}

	for {
		connector, err := e.cycle(r, interval)
		if err != nil {
			return err
		}

		if err := e.station.MeterValues(r.evse, r.connector, r.protocolID, station.Sample{
			Energy: connector.TotalEnergy,
			Power:  connector.CurrentPower,
			Soc:    connector.Soc,
		}); err != nil {
			return err
		}
		energy := connector.CurrentEnergy
		e.soft(r, e.backend.UpdateTransaction(ctx, r.transactionID, backend.TransactionUpdate{Energy: &energy}), "transaction energy")
		e.soft(r, e.backend.UpdateConnector(ctx, connector.ID, connectorUpdate(connector)), "connector values")
		e.soft(r, e.backend.UpdateVehicleSoc(ctx, r.vehicle.ID, connector.Soc), "vehicle soc")

		if connector.Soc >= 100 {
			r.log.Info("battery full")
			return nil
		}

		stop, err := e.waitInterval(ctx, r, interval)
		if err != nil {
			return err
		}
		if stop {
			r.log.Info("stopping on request")
			return nil
		}
	}
}

// cycle advances the connector by one meter value interval of interval seconds.
func (e *Engine) cycle(r *run, interval int) (chargepoint.Connector, error) {
	maxPower := e.session.MaximumDCPower
	voltage := e.session.VoltageDC
	battery := r.vehicle.BatteryCapacity

	return e.session.UpdateConnector(r.evse, r.connector, func(c *chargepoint.Connector) {
		c.CurrentPower = 0
		if c.Soc < 100 {
			c.CurrentPower = maxPower
		}
		added := Energy(c.CurrentPower, interval)
		c.CurrentEnergy += added
		c.TotalEnergy += added
		c.Soc = Soc(r.initialSoc, c.CurrentEnergy, battery)
		c.CurrentCurrent = current(c.CurrentPower, voltage)
		c.CurrentVoltage = voltage
	})
}

// waitInterval sleeps interval ticks and reports whether a stop was queued meanwhile.
func (e *Engine) waitInterval(ctx context.Context, r *run, interval int) (bool, error) {
	for i := 0; i < interval; i++ {
		connector, err := e.session.Connector(r.evse, r.connector)
		if err != nil {
			return false, err
		}
		if connector.QueuedAction == chargepoint.QueuedActionStopCharging {
			return true, nil
		}
		if err := backoff.Sleep(ctx, e.options.Tick); err != nil {
			return false, err
		}
	}

	return false, nil
}

func (e *Engine) finish(ctx context.Context, r *run) error {
	connector, err := e.session.UpdateConnector(r.evse, r.connector, func(c *chargepoint.Connector) {
		c.QueuedAction = chargepoint.QueuedActionNone
	})
	if err != nil {
		return err
	}
	if err := e.pause(ctx); err != nil {
		return err
	}

	if err := e.station.StopTransaction(r.evse, r.connector, r.protocolID, int(connector.TotalEnergy), r.idTag); err != nil {
		return err
	}
	if err := e.pause(ctx); err != nil {
		return err
	}

	for i, status := range []chargepoint.ConnectorStatus{chargepoint.ConnectorStatusFinishing, chargepoint.ConnectorStatusAvailable} {
		if i > 0 {
			if err := e.pause(ctx); err != nil {
				return err
			}
		}
		if err := e.station.StatusNotification(r.evse, r.connector, status); err != nil {
			return err
		}
		status := status
		if _, err := e.session.UpdateConnector(r.evse, r.connector, func(c *chargepoint.Connector) { c.Status = status }); err != nil {
			return err
		}
		e.soft(r, e.backend.UpdateConnectorStatus(ctx, connector.ID, status), "connector status")
	}

	voltage := e.session.VoltageDC
	connector, err = e.session.UpdateConnector(r.evse, r.connector, func(c *chargepoint.Connector) {
		c.ResetTelemetry(voltage)
	})
	if err != nil {
		return err
	}
	e.soft(r, e.backend.UpdateConnector(ctx, connector.ID, connectorUpdate(connector)), "connector values")

	evse, err := e.session.UpdateEvse(r.evse, chargepoint.EvseStatusAvailable, nil)
	if err != nil {
		return err
	}
	e.soft(r, e.backend.UpdateEvseStatus(ctx, evse.ID, evse.Status, nil), "evse status")
	e.soft(r, e.backend.UpdateVehicleStatus(ctx, r.vehicle.ID, backend.VehicleStatusReadyToCharge), "vehicle status")

	status := backend.TransactionStatusCompleted
	end := clock.Now()
	e.soft(r, e.backend.UpdateTransaction(ctx, r.transactionID, backend.TransactionUpdate{Status: &status, EndTime: &end}), "transaction completed")

	return nil
}

func (e *Engine) pause(ctx context.Context) error {
	return backoff.Sleep(ctx, e.options.StepDelay)
}

// soft logs a failed write to the system of record; the session goes on.
func (e *Engine) soft(r *run, err error, what string) {
	if err != nil {
		r.log.WithError(err).Warnf("failed to record %s", what)
	}
}

// Energy returns the Wh delivered at power kW during seconds.
func Energy(power float64, seconds int) float64 {
	return power * (float64(seconds) / 3600) * 1000
}

// Soc returns the state of charge after energy Wh went into a battery of capacity kWh.
func Soc(initial, energy, capacity float64) int {
	return int(math.Min(100, math.Trunc(initial+energy/1000*100/capacity)))
}

func current(power, voltage float64) float64 {
	if voltage == 0 {
		return 0
	}

	return float64(int(1000 * power / voltage))
}

func connectorUpdate(c chargepoint.Connector) backend.ConnectorUpdate {
	update := backend.ConnectorUpdate{
		CurrentDCPower:   c.CurrentPower,
		CurrentDCCurrent: c.CurrentCurrent,
		CurrentDCVoltage: c.CurrentVoltage,
		CurrentEnergy:    c.CurrentEnergy,
		TotalEnergy:      c.TotalEnergy,
		TransactionID:    c.TransactionID,
	}
	if c.HasTransactionInProgress() {
		soc := c.Soc
		update.Soc = &soc
	}
	if c.IdTag != "" {
		idTag := c.IdTag
		update.IdTag = &idTag
	}
	if id, err := strconv.Atoi(c.ProtocolTransactionID); err == nil {
		update.Transactionid = &id
	}

	return update
}
