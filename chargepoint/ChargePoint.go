package chargepoint

import (
	"sync"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/pkg/errors"
)

type Protocol string

const (
	ProtocolV16  Protocol = "ocpp1.6"
	ProtocolV201 Protocol = "ocpp2.0.1"
)

// Status is the lifecycle status of the whole charge point.
type Status string

const (
	StatusUnavailable Status = "unavailable"
	StatusPreparing   Status = "preparing"
	StatusAvailable   Status = "available"
	StatusOccupied    Status = "occupied"
	StatusCharging    Status = "charging"
	StatusFinishing   Status = "finishing"
	StatusFaulted     Status = "faulted"
)

const (
	DefaultVendor         = "Elu Twin"
	DefaultModel          = "Digital Twin"
	DefaultVoltageDC      = 400
	DefaultMaximumDCPower = 60
)

// Identity holds the static attributes of a charge point as read from the system of record.
type Identity struct {
	ID                 int
	CID                string
	Vendor             string
	Model              string
	Password           string
	CsmsURL            string
	Protocol           Protocol
	VoltageDC          float64
	MaximumDCPower     float64 // kW
	TokenCostPerMinute float64
	QuotaID            *int
	UserID             int
}

// ChargePoint is the in-memory state of one simulated charge point.
// Every EVSE and connector mutation goes through the methods below, which hold mu.
type ChargePoint struct {
	Identity

	Configuration *Configuration
	LocalList     *LocalList
	Reservations  *Reservations
	Profiles      *Profiles

	mu            sync.Mutex
	status        Status
	evses         []*Evse
	pendingReset  string
	authCache     map[string]types.AuthorizationStatus
	lastHeartbeat time.Time
}

func New(identity Identity, evses []*Evse, configuration *Configuration, localList *LocalList) *ChargePoint {
	if identity.Vendor == "" {
		identity.Vendor = DefaultVendor
	}
	if identity.Model == "" {
		identity.Model = DefaultModel
	}
	if identity.VoltageDC == 0 {
		identity.VoltageDC = DefaultVoltageDC
	}
	if identity.MaximumDCPower == 0 {
		identity.MaximumDCPower = DefaultMaximumDCPower
	}
	if identity.Protocol == "" {
		identity.Protocol = ProtocolV16
	}
	if configuration == nil {
		configuration = NewConfiguration()
	}
	if localList == nil {
		localList = NewLocalList(0, nil)
	}

	return &ChargePoint{
		Identity:      identity,
		Configuration: configuration,
		LocalList:     localList,
		Reservations:  NewReservations(),
		Profiles:      NewProfiles(),
		status:        StatusUnavailable,
		evses:         evses,
		authCache:     map[string]types.AuthorizationStatus{},
	}
}

func (cp *ChargePoint) Status() Status {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	return cp.status
}

func (cp *ChargePoint) SetStatus(status Status) {
	cp.mu.Lock()
	cp.status = status
	cp.mu.Unlock()
}

// Counts returns the number of connectors of every EVSE in order.
func (cp *ChargePoint) Counts() []int {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	return cp.counts()
}

func (cp *ChargePoint) counts() []int {
	counts := make([]int, len(cp.evses))
	for i, evse := range cp.evses {
		counts[i] = len(evse.Connectors)
	}

	return counts
}

func (cp *ChargePoint) ToFlat(evse, connector int) (int, error) {
	return ToFlat(cp.Counts(), evse, connector)
}

func (cp *ChargePoint) ToNested(flat int) (int, int, error) {
	return ToNested(cp.Counts(), flat)
}

func (cp *ChargePoint) connector(evse, connector int) (*Connector, error) {
	if evse < 1 || evse > len(cp.evses) {
		return nil, errors.Wrapf(ErrUnknownConnector, "evse %d", evse)
	}
	connectors := cp.evses[evse-1].Connectors
	if connector < 1 || connector > len(connectors) {
		return nil, errors.Wrapf(ErrUnknownConnector, "evse %d connector %d", evse, connector)
	}

	return connectors[connector-1], nil
}

// Connector returns a copy of the connector at the 1-based position.
func (cp *ChargePoint) Connector(evse, connector int) (Connector, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	c, err := cp.connector(evse, connector)
	if err != nil {
		return Connector{}, err
	}

	return *c, nil
}

// UpdateConnector applies fn under the session lock and returns the resulting copy.
func (cp *ChargePoint) UpdateConnector(evse, connector int, fn func(c *Connector)) (Connector, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	c, err := cp.connector(evse, connector)
	if err != nil {
		return Connector{}, err
	}
	fn(c)

	return *c, nil
}

// Evse returns a copy of the EVSE at the 1-based position, without its connectors.
func (cp *ChargePoint) Evse(evse int) (Evse, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if evse < 1 || evse > len(cp.evses) {
		return Evse{}, errors.Wrapf(ErrUnknownConnector, "evse %d", evse)
	}
	e := *cp.evses[evse-1]
	e.Connectors = nil

	return e, nil
}

// UpdateEvse sets the EVSE status and its active connector.
func (cp *ChargePoint) UpdateEvse(evse int, status EvseStatus, activeConnector *int) (Evse, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if evse < 1 || evse > len(cp.evses) {
		return Evse{}, errors.Wrapf(ErrUnknownConnector, "evse %d", evse)
	}
	e := cp.evses[evse-1]
	e.Status = status
	e.ActiveConnectorID = activeConnector

	result := *e
	result.Connectors = nil

	return result, nil
}

// Find returns the position of the first connector matching fn.
func (cp *ChargePoint) Find(fn func(evse *Evse, c *Connector) bool) (int, int, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	for i, evse := range cp.evses {
		for j, c := range evse.Connectors {
			if fn(evse, c) {
				return i + 1, j + 1, true
			}
		}
	}

	return 0, 0, false
}

// LocateByRecordID returns the position of the connector with the system of record id.
func (cp *ChargePoint) LocateByRecordID(id int) (int, int, error) {
	evse, connector, ok := cp.Find(func(_ *Evse, c *Connector) bool { return c.ID == id })
	if !ok {
		return 0, 0, errors.Wrapf(ErrUnknownConnector, "record connector %d", id)
	}

	return evse, connector, nil
}

// LocateByTransaction returns the position of the connector bound to the protocol transaction id.
func (cp *ChargePoint) LocateByTransaction(protocolTransactionID string) (int, int, bool) {
	if protocolTransactionID == "" {
		return 0, 0, false
	}

	return cp.Find(func(_ *Evse, c *Connector) bool { return c.ProtocolTransactionID == protocolTransactionID })
}

// Topology is a record id snapshot used to mirror bulk status changes.
type Topology struct {
	EvseIDs      []int
	ConnectorIDs []int
}

// MarkAvailable sets the charge point, its EVSEs and connectors available.
func (cp *ChargePoint) MarkAvailable() Topology {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	var topology Topology
	cp.status = StatusAvailable
	for _, evse := range cp.evses {
		evse.Status = EvseStatusAvailable
		topology.EvseIDs = append(topology.EvseIDs, evse.ID)
		for _, c := range evse.Connectors {
			c.Status = ConnectorStatusAvailable
			topology.ConnectorIDs = append(topology.ConnectorIDs, c.ID)
		}
	}

	return topology
}

// RequestReset records a reset request and reports false when one is already pending.
func (cp *ChargePoint) RequestReset(resetType string) bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.pendingReset != "" {
		return false
	}
	cp.pendingReset = resetType

	return true
}

func (cp *ChargePoint) PendingReset() string {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	return cp.pendingReset
}

func (cp *ChargePoint) CacheAuthorization(idTag string, status types.AuthorizationStatus) {
	cp.mu.Lock()
	cp.authCache[idTag] = status
	cp.mu.Unlock()
}

func (cp *ChargePoint) CachedAuthorization(idTag string) (types.AuthorizationStatus, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	status, ok := cp.authCache[idTag]

	return status, ok
}

func (cp *ChargePoint) ClearCache() {
	cp.mu.Lock()
	cp.authCache = map[string]types.AuthorizationStatus{}
	cp.mu.Unlock()
}

func (cp *ChargePoint) SetLastHeartbeat(at time.Time) {
	cp.mu.Lock()
	cp.lastHeartbeat = at
	cp.mu.Unlock()
}

func (cp *ChargePoint) LastHeartbeat() time.Time {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	return cp.lastHeartbeat
}

// AddChargingProfile installs a profile for the protocol connector id, 0 meaning the whole charge point.
func (cp *ChargePoint) AddChargingProfile(flat int, profile *types.ChargingProfile) error {
	assignment := Assignment{Global: flat == 0, Profile: profile}
	if flat != 0 {
		evse, connector, err := cp.ToNested(flat)
		if err != nil {
			return err
		}
		assignment.Evse, assignment.Connector, assignment.Flat = evse, connector, flat
	}

	return cp.Profiles.Add(
		assignment,
		cp.Configuration.Int(KeyChargeProfileMaxStackLevel),
		cp.Configuration.Int(KeyMaxChargingProfilesInstalled),
	)
}
