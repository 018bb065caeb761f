package chargepoint

type EvseStatus string

const (
	EvseStatusAvailable    EvseStatus = "available"
	EvseStatusCharging     EvseStatus = "charging"
	EvseStatusOccupied     EvseStatus = "occupied"
	EvseStatusUnavailable  EvseStatus = "unavailable"
	EvseStatusOutOfService EvseStatus = "out-of-service"
	EvseStatusPending      EvseStatus = "pending"
	EvseStatusBusy         EvseStatus = "busy"
)

// Evse groups the connectors that share one outlet. Connectors are ordered by position.
type Evse struct {
	ID                int // system of record id
	EvseID            int // 1-based position inside the charge point
	Status            EvseStatus
	ActiveConnectorID *int
	Connectors        []*Connector
}
