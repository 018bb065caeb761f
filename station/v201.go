package station

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	types16 "github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	ocpp2 "github.com/lorenzodonini/ocpp-go/ocpp2.0.1"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/authorization"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/availability"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/provisioning"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/remotecontrol"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/tariffcost"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/transactions"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/types"
	"github.com/lorenzodonini/ocpp-go/ocppj"
	"github.com/michalkurzeja/go-clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"charge_point_twin/chargepoint"
	"charge_point_twin/registry"
)

// V201Handler serves the CSMS initiated OCPP 2.0.1 requests the simulator supports.
type V201Handler interface {
	remotecontrol.ChargingStationHandler
	availability.ChargingStationHandler
	tariffcost.ChargingStationHandler
}

type V201 struct {
	session    *chargepoint.ChargePoint
	registry   *registry.Registry
	sender     registry.Sender
	station    ocpp2.ChargingStation
	disconnect *disconnect
	log        *logrus.Entry

	mu       sync.Mutex
	sequence map[string]int
}

func NewV201(session *chargepoint.ChargePoint, logger *logrus.Entry) *V201 {
	wsClient := newWsClient(session)
	endpoint := ocppj.NewClient(session.CID, wsClient, nil, nil,
		authorization.Profile,
		availability.Profile,
		provisioning.Profile,
		remotecontrol.Profile,
		tariffcost.Profile,
		transactions.Profile,
	)
	cs := ocpp2.NewChargingStation(session.CID, endpoint, wsClient)

	s := &V201{
		session:    session,
		registry:   registry.NewV201(logger),
		sender:     cs,
		station:    cs,
		disconnect: newDisconnect(),
		log:        logger,
		sequence:   map[string]int{},
	}
	s.disconnect.watch(endpoint, logger, cs.Stop)

	return s
}

func newV201WithSender(session *chargepoint.ChargePoint, sender registry.Sender, logger *logrus.Entry) *V201 {
	return &V201{
		session:    session,
		registry:   registry.NewV201(logger),
		sender:     sender,
		disconnect: newDisconnect(),
		log:        logger,
		sequence:   map[string]int{},
	}
}

func (s *V201) Registry() *registry.Registry {
	return s.registry
}

// SetHandler installs the inbound handlers. Call before Connect.
func (s *V201) SetHandler(handler V201Handler) {
	s.station.SetRemoteControlHandler(handler)
	s.station.SetAvailabilityHandler(handler)
	s.station.SetTariffCostHandler(handler)
}

func (s *V201) Connect() error {
	if err := s.station.Start(s.session.CsmsURL); err != nil {
		return errors.Wrapf(err, "failed to connect to %s", s.session.CsmsURL)
	}
	s.log.WithField("url", s.session.CsmsURL).Info("connected to CSMS")

	return nil
}

func (s *V201) Stop() {
	s.station.Stop()
}

func (s *V201) Disconnected() <-chan struct{} {
	return s.disconnect.ch
}

func (s *V201) BootNotification() (bool, time.Duration, error) {
	response, err := registry.Request[*provisioning.BootNotificationResponse](s.registry, s.sender, provisioning.BootNotificationFeatureName,
		provisioning.NewBootNotificationRequest(provisioning.BootReasonPowerUp, s.session.Model, s.session.Vendor))
	if err != nil {
		return false, 0, err
	}

	return response.Status == provisioning.RegistrationStatusAccepted, time.Duration(response.Interval) * time.Second, nil
}

func (s *V201) Heartbeat() error {
	_, err := registry.Request[*availability.HeartbeatResponse](s.registry, s.sender, availability.HeartbeatFeatureName, availability.NewHeartbeatRequest())

	return err
}

func (s *V201) Authorize(idTag string) (types16.AuthorizationStatus, error) {
	request := &authorization.AuthorizeRequest{IdToken: idToken(idTag)}
	response, err := registry.Request[*authorization.AuthorizeResponse](s.registry, s.sender, authorization.AuthorizeFeatureName, request)
	if err != nil {
		return "", err
	}

	return types16.AuthorizationStatus(response.IdTokenInfo.Status), nil
}

func (s *V201) StatusNotification(evse, connector int, status chargepoint.ConnectorStatus) error {
	request := availability.NewStatusNotificationRequest(types.NewDateTime(clock.Now()), v201Status(status), evse, connector)
	_, err := registry.Request[*availability.StatusNotificationResponse](s.registry, s.sender, availability.StatusNotificationFeatureName, request)

	return err
}

// TransactionID returns the identifier the station assigns to a new transaction on a connector.
func TransactionID(evse, connector int) string {
	return fmt.Sprintf("%d-%d-%s", evse, connector, uuid.NewString())
}

func (s *V201) StartTransaction(start Start) (string, error) {
	id := TransactionID(start.Evse, start.Connector)
	token := idToken(start.IdTag)

	request := s.event(transactions.TransactionEventStarted, transactions.TriggerReasonAuthorized, id, start.Evse, start.Connector)
	request.IDToken = &token
	request.ReservationID = start.ReservationID
	request.MeterValue = []types.MeterValue{meterValue(Sample{Energy: float64(start.MeterStart)})}
	if _, err := registry.Request[*transactions.TransactionEventResponse](s.registry, s.sender, transactions.TransactionEventFeatureName, request); err != nil {
		s.forget(id)
		return "", err
	}

	return id, nil
}

func (s *V201) MeterValues(evse, connector int, transactionID string, sample Sample) error {
	request := s.event(transactions.TransactionEventUpdated, transactions.TriggerReasonMeterValuePeriodic, transactionID, evse, connector)
	request.MeterValue = []types.MeterValue{meterValue(sample)}
	_, err := registry.Request[*transactions.TransactionEventResponse](s.registry, s.sender, transactions.TransactionEventFeatureName, request)

	return err
}

func (s *V201) StopTransaction(evse, connector int, transactionID string, meterStop int, idTag string) error {
	token := idToken(idTag)

	request := s.event(transactions.TransactionEventEnded, transactions.TriggerReasonStopAuthorized, transactionID, evse, connector)
	request.IDToken = &token
	request.MeterValue = []types.MeterValue{meterValue(Sample{Energy: float64(meterStop)})}
	_, err := registry.Request[*transactions.TransactionEventResponse](s.registry, s.sender, transactions.TransactionEventFeatureName, request)
	s.forget(transactionID)

	return err
}

func (s *V201) event(eventType transactions.TransactionEvent, reason transactions.TriggerReason, transactionID string, evse, connector int) *transactions.TransactionEventRequest {
	connectorID := connector

	return &transactions.TransactionEventRequest{
		EventType:       eventType,
		Timestamp:       types.NewDateTime(clock.Now()),
		TriggerReason:   reason,
		SequenceNo:      s.next(transactionID),
		TransactionInfo: transactions.Transaction{TransactionID: transactionID},
		Evse:            &types.EVSE{ID: evse, ConnectorID: &connectorID},
	}
}

// next returns the sequence number of the next event of a transaction, starting at 0.
func (s *V201) next(transactionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.sequence[transactionID]
	s.sequence[transactionID] = n + 1

	return n
}

func (s *V201) forget(transactionID string) {
	s.mu.Lock()
	delete(s.sequence, transactionID)
	s.mu.Unlock()
}

func idToken(idTag string) types.IdToken {
	return types.IdToken{IdToken: idTag, Type: types.IdTokenTypeCentral}
}

func meterValue(sample Sample) types.MeterValue {
	return types.MeterValue{
		Timestamp: *types.NewDateTime(clock.Now()),
		SampledValue: []types.SampledValue{
			{
				Value:         sample.Energy,
				Context:       types.ReadingContextSamplePeriodic,
				Measurand:     types.MeasurandEnergyActiveImportRegister,
				Location:      types.LocationCable,
				UnitOfMeasure: &types.UnitOfMeasure{Unit: "Wh"},
			},
			{
				Value:         sample.Power * 1000,
				Context:       types.ReadingContextSamplePeriodic,
				Measurand:     types.MeasurandPowerActiveImport,
				Location:      types.LocationCable,
				UnitOfMeasure: &types.UnitOfMeasure{Unit: "W"},
			},
			{
				Value:         float64(sample.Soc),
				Context:       types.ReadingContextSamplePeriodic,
				Measurand:     types.MeasurandSoC,
				Location:      types.LocationEV,
				UnitOfMeasure: &types.UnitOfMeasure{Unit: "Percent"},
			},
		},
	}
}

func v201Status(status chargepoint.ConnectorStatus) availability.ConnectorStatus {
	switch status {
	case chargepoint.ConnectorStatusAvailable:
		return availability.ConnectorStatusAvailable
	case chargepoint.ConnectorStatusPreparing, chargepoint.ConnectorStatusCharging,
		chargepoint.ConnectorStatusFinishing, chargepoint.ConnectorStatusOccupied:
		return availability.ConnectorStatusOccupied
	case chargepoint.ConnectorStatusOutOfService:
		return availability.ConnectorStatusFaulted
	default:
		return availability.ConnectorStatusUnavailable
	}
}
