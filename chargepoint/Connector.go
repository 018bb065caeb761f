package chargepoint

// ConnectorStatus mirrors the connector status stored by the system of record.
type ConnectorStatus string

const (
	ConnectorStatusAvailable    ConnectorStatus = "available"
	ConnectorStatusCharging     ConnectorStatus = "charging"
	ConnectorStatusOccupied     ConnectorStatus = "occupied"
	ConnectorStatusUnavailable  ConnectorStatus = "unavailable"
	ConnectorStatusOutOfService ConnectorStatus = "out-of-service"
	ConnectorStatusPending      ConnectorStatus = "pending"
	ConnectorStatusPreparing    ConnectorStatus = "preparing"
	ConnectorStatusFinishing    ConnectorStatus = "finishing"
)

// QueuedAction is a request left on a connector for the task that owns its transaction.
type QueuedAction string

const (
	QueuedActionNone         QueuedAction = ""
	QueuedActionStopCharging QueuedAction = "stop-charging"
)

// Availability is the operative state requested by the CSMS through ChangeAvailability.
type Availability string

const (
	AvailabilityOperative   Availability = "Operative"
	AvailabilityInoperative Availability = "Inoperative"
)

type Connector struct {
	ID           int // system of record id
	ConnectorID  int // 1-based position inside the EVSE
	Type         string
	Status       ConnectorStatus
	Availability Availability

	CurrentPower   float64 // kW
	CurrentCurrent float64 // A
	CurrentVoltage float64 // V
	CurrentEnergy  float64 // Wh delivered in the running session
	TotalEnergy    float64 // Wh meter register
	Soc            int

	IdTag                 string
	TransactionID         *int // system of record transaction
	ProtocolTransactionID string
	VehicleID             *int
	QueuedAction          QueuedAction
}

func (c *Connector) HasTransactionInProgress() bool {
	return c.ProtocolTransactionID != "" || c.TransactionID != nil
}

// ResetTelemetry clears the live session values and keeps the energy register.
func (c *Connector) ResetTelemetry(voltage float64) {
	c.CurrentPower = 0
	c.CurrentCurrent = 0
	c.CurrentVoltage = voltage
	c.CurrentEnergy = 0
	c.Soc = 0
	c.IdTag = ""
	c.TransactionID = nil
	c.ProtocolTransactionID = ""
	c.VehicleID = nil
	c.QueuedAction = QueuedActionNone
}
