package actions

import (
	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/reservation"
	"github.com/michalkurzeja/go-clock"

	"charge_point_twin/chargepoint"
	"charge_point_twin/registry"
)

type ReservationProfileActions struct {
	Dependencies
}

func InitializeReservationProfileActions(d Dependencies) *ReservationProfileActions {
	a := &ReservationProfileActions{Dependencies: d}

	d.install(reservation.ReserveNowFeatureName, registry.WithReply(a.reserveNow))
	d.install(reservation.CancelReservationFeatureName, registry.WithReply(a.cancelReservation))

	return a
}

func (a *ReservationProfileActions) OnReserveNow(request *reservation.ReserveNowRequest) (*reservation.ReserveNowConfirmation, error) {
	return registry.Reply[*reservation.ReserveNowConfirmation](a.Registry, reservation.ReserveNowFeatureName, request)
}

func (a *ReservationProfileActions) OnCancelReservation(request *reservation.CancelReservationRequest) (*reservation.CancelReservationConfirmation, error) {
	return registry.Reply[*reservation.CancelReservationConfirmation](a.Registry, reservation.CancelReservationFeatureName, request)
}

func (a *ReservationProfileActions) reserveNow(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*reservation.ReserveNowRequest)
	logger := a.log(reservation.ReserveNowFeatureName).WithField("reservation", req.ReservationId)

	if req.ExpiryDate == nil {
		return reservation.NewReserveNowConfirmation(reservation.ReservationStatusRejected), nil
	}
	if req.ConnectorId == 0 {
		if !a.ChargePoint.Configuration.Bool(chargepoint.KeyReserveConnectorZeroSupported) {
			return reservation.NewReserveNowConfirmation(reservation.ReservationStatusRejected), nil
		}
	} else {
		evse, connector, err := a.ChargePoint.ToNested(req.ConnectorId)
		if err != nil {
			logger.WithError(err).Warn("reservation rejected")
			return reservation.NewReserveNowConfirmation(reservation.ReservationStatusRejected), nil
		}
		c, err := a.ChargePoint.Connector(evse, connector)
		if err != nil {
			return reservation.NewReserveNowConfirmation(reservation.ReservationStatusRejected), nil
		}
		switch {
		case c.Availability == chargepoint.AvailabilityInoperative:
			return reservation.NewReserveNowConfirmation(reservation.ReservationStatusUnavailable), nil
		case c.Status == chargepoint.ConnectorStatusOutOfService:
			return reservation.NewReserveNowConfirmation(reservation.ReservationStatusFaulted), nil
		case c.HasTransactionInProgress():
			return reservation.NewReserveNowConfirmation(reservation.ReservationStatusOccupied), nil
		case a.ChargePoint.Reservations.Reserved(req.ConnectorId, req.ReservationId, clock.Now()):
			logger.Infof("connector %d is reserved by another reservation", req.ConnectorId)
			return reservation.NewReserveNowConfirmation(reservation.ReservationStatusOccupied), nil
		}
	}

	accepted := a.ChargePoint.Reservations.Add(chargepoint.Reservation{
		ReservationID: req.ReservationId,
		ConnectorID:   req.ConnectorId,
		ExpiryDate:    req.ExpiryDate.Time,
		IdTag:         req.IdTag,
		ParentIdTag:   req.ParentIdTag,
	}, clock.Now())
	if !accepted {
		logger.Warnf("reservation expired at %s", req.ExpiryDate.Time)
		return reservation.NewReserveNowConfirmation(reservation.ReservationStatusRejected), nil
	}
	logger.Infof("connector %d reserved for %s", req.ConnectorId, req.IdTag)

	return reservation.NewReserveNowConfirmation(reservation.ReservationStatusAccepted), nil
}

func (a *ReservationProfileActions) cancelReservation(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*reservation.CancelReservationRequest)

	if !a.ChargePoint.Reservations.Cancel(req.ReservationId) {
		return reservation.NewCancelReservationConfirmation(reservation.CancelReservationStatusRejected), nil
	}

	return reservation.NewCancelReservationConfirmation(reservation.CancelReservationStatusAccepted), nil
}
