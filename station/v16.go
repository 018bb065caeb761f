package station

import (
	"strconv"
	"time"

	ocpp16 "github.com/lorenzodonini/ocpp-go/ocpp1.6"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/firmware"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/localauth"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/remotetrigger"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/reservation"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/smartcharging"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/lorenzodonini/ocpp-go/ocppj"
	"github.com/michalkurzeja/go-clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"charge_point_twin/chargepoint"
	"charge_point_twin/registry"
)

// V16Handler serves every CSMS initiated OCPP 1.6 request.
type V16Handler interface {
	core.ChargePointHandler
	localauth.ChargePointHandler
	firmware.ChargePointHandler
	reservation.ChargePointHandler
	remotetrigger.ChargePointHandler
	smartcharging.ChargePointHandler
}

type V16 struct {
	session     *chargepoint.ChargePoint
	registry    *registry.Registry
	sender      registry.Sender
	chargePoint ocpp16.ChargePoint
	disconnect  *disconnect
	log         *logrus.Entry
}

func NewV16(session *chargepoint.ChargePoint, logger *logrus.Entry) *V16 {
	wsClient := newWsClient(session)
	endpoint := ocppj.NewClient(session.CID, wsClient, nil, nil,
		core.Profile,
		localauth.Profile,
		firmware.Profile,
		reservation.Profile,
		remotetrigger.Profile,
		smartcharging.Profile,
	)
	cp := ocpp16.NewChargePoint(session.CID, endpoint, wsClient)

	s := &V16{
		session:     session,
		registry:    registry.NewV16(logger),
		sender:      cp,
		chargePoint: cp,
		disconnect:  newDisconnect(),
		log:         logger,
	}
	s.disconnect.watch(endpoint, logger, cp.Stop)

	return s
}

// newV16WithSender builds an adapter around an already connected sender.
func newV16WithSender(session *chargepoint.ChargePoint, sender registry.Sender, logger *logrus.Entry) *V16 {
	return &V16{
		session:    session,
		registry:   registry.NewV16(logger),
		sender:     sender,
		disconnect: newDisconnect(),
		log:        logger,
	}
}

func (s *V16) Registry() *registry.Registry {
	return s.registry
}

// SetHandler installs the handler of every inbound feature profile. Call before Connect.
func (s *V16) SetHandler(handler V16Handler) {
	s.chargePoint.SetCoreHandler(handler)
	s.chargePoint.SetLocalAuthListHandler(handler)
	s.chargePoint.SetFirmwareManagementHandler(handler)
	s.chargePoint.SetReservationHandler(handler)
	s.chargePoint.SetRemoteTriggerHandler(handler)
	s.chargePoint.SetSmartChargingHandler(handler)
}

func (s *V16) Connect() error {
	if err := s.chargePoint.Start(s.session.CsmsURL); err != nil {
		return errors.Wrapf(err, "failed to connect to %s", s.session.CsmsURL)
	}
	s.log.WithField("url", s.session.CsmsURL).Info("connected to CSMS")

	return nil
}

func (s *V16) Stop() {
	s.chargePoint.Stop()
}

func (s *V16) Disconnected() <-chan struct{} {
	return s.disconnect.ch
}

func (s *V16) BootNotification() (bool, time.Duration, error) {
	confirmation, err := registry.Request[*core.BootNotificationConfirmation](s.registry, s.sender, core.BootNotificationFeatureName,
		core.NewBootNotificationRequest(s.session.Model, s.session.Vendor))
	if err != nil {
		return false, 0, err
	}

	return confirmation.Status == core.RegistrationStatusAccepted, time.Duration(confirmation.Interval) * time.Second, nil
}

func (s *V16) Heartbeat() error {
	_, err := registry.Request[*core.HeartbeatConfirmation](s.registry, s.sender, core.HeartbeatFeatureName, core.NewHeartbeatRequest())

	return err
}

func (s *V16) Authorize(idTag string) (types.AuthorizationStatus, error) {
	confirmation, err := registry.Request[*core.AuthorizeConfirmation](s.registry, s.sender, core.AuthorizeFeatureName, core.NewAuthorizationRequest(idTag))
	if err != nil {
		return "", err
	}
	if confirmation.IdTagInfo == nil {
		return types.AuthorizationStatusInvalid, nil
	}

	return confirmation.IdTagInfo.Status, nil
}

func (s *V16) StatusNotification(evse, connector int, status chargepoint.ConnectorStatus) error {
	flat, err := s.session.ToFlat(evse, connector)
	if err != nil {
		return err
	}

	request := core.NewStatusNotificationRequest(flat, core.NoError, v16Status(status))
	request.Timestamp = types.NewDateTime(clock.Now())
	_, err = registry.Request[*core.StatusNotificationConfirmation](s.registry, s.sender, core.StatusNotificationFeatureName, request)

	return err
}

func (s *V16) StartTransaction(start Start) (string, error) {
	flat, err := s.session.ToFlat(start.Evse, start.Connector)
	if err != nil {
		return "", err
	}

	request := core.NewStartTransactionRequest(flat, start.IdTag, start.MeterStart, types.NewDateTime(clock.Now()))
	request.ReservationId = start.ReservationID
	confirmation, err := registry.Request[*core.StartTransactionConfirmation](s.registry, s.sender, core.StartTransactionFeatureName, request)
	if err != nil {
		return "", err
	}
	if confirmation.IdTagInfo != nil && confirmation.IdTagInfo.Status != types.AuthorizationStatusAccepted {
		s.log.WithField("transaction", confirmation.TransactionId).Warnf("transaction started with id tag status %s", confirmation.IdTagInfo.Status)
	}

	return strconv.Itoa(confirmation.TransactionId), nil
}

func (s *V16) MeterValues(evse, connector int, transactionID string, sample Sample) error {
	flat, err := s.session.ToFlat(evse, connector)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(transactionID)
	if err != nil {
		return errors.Wrapf(err, "invalid transaction id %q", transactionID)
	}

	request := core.NewMeterValuesRequest(flat, []types.MeterValue{{
		Timestamp: types.NewDateTime(clock.Now()),
		SampledValue: []types.SampledValue{
			{
				Value:     strconv.Itoa(int(sample.Energy)),
				Context:   types.ReadingContextSamplePeriodic,
				Format:    types.ValueFormatRaw,
				Measurand: types.MeasurandEnergyActiveImportRegister,
				Location:  types.LocationCable,
				Unit:      types.UnitOfMeasureWh,
			},
			{
				Value:     strconv.FormatFloat(sample.Power*1000, 'f', -1, 64),
				Context:   types.ReadingContextSamplePeriodic,
				Format:    types.ValueFormatRaw,
				Measurand: types.MeasurandPowerActiveImport,
				Location:  types.LocationCable,
				Unit:      types.UnitOfMeasureW,
			},
			{
				Value:     strconv.Itoa(sample.Soc),
				Context:   types.ReadingContextSamplePeriodic,
				Format:    types.ValueFormatRaw,
				Measurand: types.MeasurandSoC,
				Location:  types.LocationEV,
				Unit:      types.UnitOfMeasurePercent,
			},
		},
	}})
	request.TransactionId = &id
	_, err = registry.Request[*core.MeterValuesConfirmation](s.registry, s.sender, core.MeterValuesFeatureName, request)

	return err
}

func (s *V16) StopTransaction(_, _ int, transactionID string, meterStop int, idTag string) error {
	id, err := strconv.Atoi(transactionID)
	if err != nil {
		return errors.Wrapf(err, "invalid transaction id %q", transactionID)
	}

	request := core.NewStopTransactionRequest(meterStop, types.NewDateTime(clock.Now()), id)
	request.Reason = core.ReasonLocal
	request.IdTag = idTag
	_, err = registry.Request[*core.StopTransactionConfirmation](s.registry, s.sender, core.StopTransactionFeatureName, request)

	return err
}

func v16Status(status chargepoint.ConnectorStatus) core.ChargePointStatus {
	switch status {
	case chargepoint.ConnectorStatusAvailable:
		return core.ChargePointStatusAvailable
	case chargepoint.ConnectorStatusPreparing, chargepoint.ConnectorStatusOccupied:
		return core.ChargePointStatusPreparing
	case chargepoint.ConnectorStatusCharging:
		return core.ChargePointStatusCharging
	case chargepoint.ConnectorStatusFinishing:
		return core.ChargePointStatusFinishing
	case chargepoint.ConnectorStatusOutOfService:
		return core.ChargePointStatusFaulted
	default:
		return core.ChargePointStatusUnavailable
	}
}
