package actions

import (
	"time"

	"github.com/michalkurzeja/go-clock"
	"github.com/sirupsen/logrus"

	"charge_point_twin/chargepoint"
	"charge_point_twin/station"
)

// position addresses a connector by its 1-based EVSE and connector positions.
type position struct {
	evse      int
	connector int
}

func allPositions(cp *chargepoint.ChargePoint) []position {
	var positions []position
	for e, count := range cp.Counts() {
		for c := 1; c <= count; c++ {
			positions = append(positions, position{e + 1, c})
		}
	}

	return positions
}

func evsePositions(cp *chargepoint.ChargePoint, evse int) []position {
	counts := cp.Counts()
	if evse < 1 || evse > len(counts) {
		return nil
	}
	positions := make([]position, 0, counts[evse-1])
	for c := 1; c <= counts[evse-1]; c++ {
		positions = append(positions, position{evse, c})
	}

	return positions
}

// remoteStart asks the system of record to start a transaction on an available connector.
// The system of record answers by publishing the StartTransaction command the engine runs.
func remoteStart(d Dependencies, logger *logrus.Entry, evse, connector int) bool {
	e, err := d.ChargePoint.Evse(evse)
	if err != nil {
		logger.WithError(err).Warn("remote start rejected")
		return false
	}
	c, err := d.ChargePoint.Connector(evse, connector)
	if err != nil {
		logger.WithError(err).Warn("remote start rejected")
		return false
	}
	if e.Status != chargepoint.EvseStatusAvailable || c.Status != chargepoint.ConnectorStatusAvailable ||
		c.Availability == chargepoint.AvailabilityInoperative || c.HasTransactionInProgress() {
		logger.WithField("connector", c.ID).Warnf("remote start rejected, connector is %s", c.Status)
		return false
	}

	ctx, cancel := d.backendContext()
	defer cancel()

	transaction, err := d.Backend.StartTransaction(ctx, d.ChargePoint.UserID, c.ID)
	if err != nil || transaction == nil {
		logger.WithError(err).WithField("connector", c.ID).Error("system of record refused the transaction")
		return false
	}
	logger.WithField("transaction", transaction.ID).Info("remote start accepted")

	return true
}

// remoteStop asks the system of record to stop the transaction bound to a protocol transaction id.
func remoteStop(d Dependencies, logger *logrus.Entry, protocolTransactionID string) bool {
	evse, connector, ok := d.ChargePoint.LocateByTransaction(protocolTransactionID)
	if !ok {
		logger.Warn("remote stop rejected, unknown transaction")
		return false
	}
	c, err := d.ChargePoint.Connector(evse, connector)
	if err != nil || c.TransactionID == nil {
		logger.Warn("remote stop rejected, no transaction on connector")
		return false
	}

	ctx, cancel := d.backendContext()
	defer cancel()

	if _, err := d.Backend.StopTransaction(ctx, d.ChargePoint.UserID, *c.TransactionID); err != nil {
		logger.WithError(err).Error("system of record refused to stop the transaction")
		return false
	}
	logger.Info("remote stop accepted")

	return true
}

// setAvailability applies availability to positions and reports whether a change waits for
// a running transaction. Status notifications go out after the handler returned.
func setAvailability(d Dependencies, logger *logrus.Entry, positions []position, availability chargepoint.Availability) bool {
	status := chargepoint.ConnectorStatusAvailable
	if availability == chargepoint.AvailabilityInoperative {
		status = chargepoint.ConnectorStatusUnavailable
	}

	scheduled := false
	var changed []position
	for _, p := range positions {
		_, err := d.ChargePoint.UpdateConnector(p.evse, p.connector, func(c *chargepoint.Connector) {
			c.Availability = availability
			if c.HasTransactionInProgress() {
				scheduled = true
				return
			}
			if c.Status != status {
				c.Status = status
				changed = append(changed, p)
			}
		})
		if err != nil {
			logger.WithError(err).Warn("availability change skipped")
		}
	}
	if len(changed) > 0 {
		go notifyStatus(d, logger, changed, status)
	}

	return scheduled
}

func notifyStatus(d Dependencies, logger *logrus.Entry, positions []position, status chargepoint.ConnectorStatus) {
	ctx, cancel := d.backendContext()
	defer cancel()

	for _, p := range positions {
		c, err := d.ChargePoint.Connector(p.evse, p.connector)
		if err != nil {
			continue
		}
		if err := d.Station.StatusNotification(p.evse, p.connector, status); err != nil {
			logger.WithError(err).Warn("failed to notify status")
		}
		if err := d.Backend.UpdateConnectorStatus(ctx, c.ID, status); err != nil {
			logger.WithError(err).Warn("failed to store connector status")
		}
	}
}

// Messages the CSMS may ask for with TriggerMessage.
const (
	triggerBootNotification   = "BootNotification"
	triggerHeartbeat          = "Heartbeat"
	triggerStatusNotification = "StatusNotification"
	triggerMeterValues        = "MeterValues"
)

func triggerable(message string) bool {
	switch message {
	case triggerBootNotification, triggerHeartbeat, triggerStatusNotification, triggerMeterValues:
		return true
	}

	return false
}

// trigger sends message for positions. It runs outside the handler and waits for the
// confirmation to be written before the first request goes out.
func trigger(d Dependencies, logger *logrus.Entry, message string, positions []position) {
	time.Sleep(d.triggerDelay())

	switch message {
	case triggerBootNotification:
		if _, _, err := d.Station.BootNotification(); err != nil {
			logger.WithError(err).Warn("triggered boot notification failed")
		}
	case triggerHeartbeat:
		if err := d.Station.Heartbeat(); err != nil {
			logger.WithError(err).Warn("triggered heartbeat failed")
			return
		}
		d.ChargePoint.SetLastHeartbeat(clock.Now())
	case triggerStatusNotification:
		for _, p := range positions {
			c, err := d.ChargePoint.Connector(p.evse, p.connector)
			if err != nil {
				continue
			}
			if err := d.Station.StatusNotification(p.evse, p.connector, c.Status); err != nil {
				logger.WithError(err).Warn("triggered status notification failed")
			}
		}
	case triggerMeterValues:
		for _, p := range positions {
			c, err := d.ChargePoint.Connector(p.evse, p.connector)
			if err != nil || c.ProtocolTransactionID == "" {
				continue
			}
			sample := station.Sample{Energy: c.TotalEnergy, Power: c.CurrentPower, Soc: c.Soc}
			if err := d.Station.MeterValues(p.evse, p.connector, c.ProtocolTransactionID, sample); err != nil {
				logger.WithError(err).Warn("triggered meter values failed")
			}
		}
	}
}
