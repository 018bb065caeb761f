// Package station wraps the ocpp-go charge point endpoints behind one interface.
package station

import (
	"sync"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/lorenzodonini/ocpp-go/ocppj"
	"github.com/lorenzodonini/ocpp-go/ws"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"charge_point_twin/chargepoint"
)

var ErrDisconnected = errors.New("websocket connection to the CSMS lost")

// Sample is one meter reading of a connector.
type Sample struct {
	Energy float64 // Wh meter register
	Power  float64 // kW
	Soc    int
}

// Start describes a transaction start request.
type Start struct {
	Evse          int
	Connector     int
	IdTag         string
	MeterStart    int
	ReservationID *int
}

// Station is the protocol side of one simulated charge point.
type Station interface {
	Connect() error
	Stop()
	// Disconnected is closed when the websocket drops after Connect.
	Disconnected() <-chan struct{}

	BootNotification() (accepted bool, interval time.Duration, err error)
	Heartbeat() error
	Authorize(idTag string) (types.AuthorizationStatus, error)
	StatusNotification(evse, connector int, status chargepoint.ConnectorStatus) error
	StartTransaction(start Start) (transactionID string, err error)
	MeterValues(evse, connector int, transactionID string, sample Sample) error
	StopTransaction(evse, connector int, transactionID string, meterStop int, idTag string) error
}

// New returns the adapter matching the protocol of the session.
func New(session *chargepoint.ChargePoint, logger *logrus.Entry) (Station, error) {
	switch session.Protocol {
	case chargepoint.ProtocolV16:
		return NewV16(session, logger), nil
	case chargepoint.ProtocolV201:
		return NewV201(session, logger), nil
	default:
		return nil, errors.Errorf("unsupported protocol %q", session.Protocol)
	}
}

func newWsClient(session *chargepoint.ChargePoint) ws.WsClient {
	client := ws.NewClient()
	client.SetBasicAuth(session.CID, session.Password)

	return client
}

// disconnect closes its channel once, the first time the endpoint reports a lost connection.
type disconnect struct {
	once sync.Once
	ch   chan struct{}
}

func newDisconnect() *disconnect {
	return &disconnect{ch: make(chan struct{})}
}

func (d *disconnect) watch(endpoint *ocppj.Client, logger *logrus.Entry, stop func()) {
	endpoint.SetOnDisconnectedHandler(func(err error) {
		d.once.Do(func() {
			logger.WithError(err).Error("disconnected from CSMS")
			// Stopping halts the websocket reconnect loop; the session group ends instead.
			go stop()
			close(d.ch)
		})
	})
}
