package actions

import (
	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/availability"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/remotecontrol"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/tariffcost"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/types"

	"charge_point_twin/chargepoint"
	"charge_point_twin/registry"
	"charge_point_twin/station"
)

// V201 serves the OCPP 2.0.1 requests of a session. EVSE and connector ids are the nested ones.
type V201 struct {
	Dependencies
}

var _ station.V201Handler = (*V201)(nil)

func NewV201(d Dependencies) *V201 {
	a := &V201{Dependencies: d}

	d.install(remotecontrol.RequestStartTransactionFeatureName, registry.WithReply(a.requestStartTransaction))
	d.install(remotecontrol.RequestStopTransactionFeatureName, registry.WithReply(a.requestStopTransaction))
	d.install(remotecontrol.UnlockConnectorFeatureName, registry.WithReply(a.unlockConnector))
	d.install(remotecontrol.TriggerMessageFeatureName,
		registry.WithReply(a.triggerMessage),
		registry.WithAfter(a.afterTriggerMessage),
	)
	d.install(availability.ChangeAvailabilityFeatureName, registry.WithReply(a.changeAvailability))

	return a
}

func (a *V201) OnRequestStartTransaction(request *remotecontrol.RequestStartTransactionRequest) (*remotecontrol.RequestStartTransactionResponse, error) {
	return registry.Reply[*remotecontrol.RequestStartTransactionResponse](a.Registry, remotecontrol.RequestStartTransactionFeatureName, request)
}

func (a *V201) OnRequestStopTransaction(request *remotecontrol.RequestStopTransactionRequest) (*remotecontrol.RequestStopTransactionResponse, error) {
	return registry.Reply[*remotecontrol.RequestStopTransactionResponse](a.Registry, remotecontrol.RequestStopTransactionFeatureName, request)
}

func (a *V201) OnUnlockConnector(request *remotecontrol.UnlockConnectorRequest) (*remotecontrol.UnlockConnectorResponse, error) {
	return registry.Reply[*remotecontrol.UnlockConnectorResponse](a.Registry, remotecontrol.UnlockConnectorFeatureName, request)
}

func (a *V201) OnTriggerMessage(request *remotecontrol.TriggerMessageRequest) (*remotecontrol.TriggerMessageResponse, error) {
	return registry.Reply[*remotecontrol.TriggerMessageResponse](a.Registry, remotecontrol.TriggerMessageFeatureName, request)
}

func (a *V201) OnChangeAvailability(request *availability.ChangeAvailabilityRequest) (*availability.ChangeAvailabilityResponse, error) {
	return registry.Reply[*availability.ChangeAvailabilityResponse](a.Registry, availability.ChangeAvailabilityFeatureName, request)
}

func (a *V201) OnCostUpdated(request *tariffcost.CostUpdatedRequest) (*tariffcost.CostUpdatedResponse, error) {
	return registry.Reply[*tariffcost.CostUpdatedResponse](a.Registry, tariffcost.CostUpdatedFeatureName, request)
}

func (a *V201) requestStartTransaction(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*remotecontrol.RequestStartTransactionRequest)
	logger := a.log(remotecontrol.RequestStartTransactionFeatureName).WithField("remote_start", req.RemoteStartID)
	rejected := &remotecontrol.RequestStartTransactionResponse{Status: remotecontrol.RequestStartStopStatusRejected}

	evse, connector, ok := a.ChargePoint.Find(func(e *chargepoint.Evse, c *chargepoint.Connector) bool {
		if req.EvseID != nil && e.EvseID != *req.EvseID {
			return false
		}
		return e.Status == chargepoint.EvseStatusAvailable && c.Status == chargepoint.ConnectorStatusAvailable &&
			c.Availability != chargepoint.AvailabilityInoperative && !c.HasTransactionInProgress()
	})
	if !ok {
		logger.Warn("remote start rejected, no available connector")
		return rejected, nil
	}
	if !remoteStart(a.Dependencies, logger, evse, connector) {
		return rejected, nil
	}

	return &remotecontrol.RequestStartTransactionResponse{Status: remotecontrol.RequestStartStopStatusAccepted}, nil
}

func (a *V201) requestStopTransaction(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*remotecontrol.RequestStopTransactionRequest)
	logger := a.log(remotecontrol.RequestStopTransactionFeatureName).WithField("transaction", req.TransactionID)

	if !remoteStop(a.Dependencies, logger, req.TransactionID) {
		return &remotecontrol.RequestStopTransactionResponse{Status: remotecontrol.RequestStartStopStatusRejected}, nil
	}

	return &remotecontrol.RequestStopTransactionResponse{Status: remotecontrol.RequestStartStopStatusAccepted}, nil
}

func (a *V201) unlockConnector(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*remotecontrol.UnlockConnectorRequest)

	c, err := a.ChargePoint.Connector(req.EvseID, req.ConnectorID)
	switch {
	case err != nil:
		return &remotecontrol.UnlockConnectorResponse{Status: remotecontrol.UnlockStatusUnknownConnector}, nil
	case c.HasTransactionInProgress():
		return &remotecontrol.UnlockConnectorResponse{Status: remotecontrol.UnlockStatusOngoingAuthorizedTransaction}, nil
	}

	return &remotecontrol.UnlockConnectorResponse{Status: remotecontrol.UnlockStatusUnlocked}, nil
}

func (a *V201) triggerMessage(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*remotecontrol.TriggerMessageRequest)

	if !triggerable(string(req.RequestedMessage)) {
		return &remotecontrol.TriggerMessageResponse{Status: remotecontrol.TriggerMessageStatusNotImplemented}, nil
	}
	if _, ok := a.positions(req.Evse); !ok {
		return &remotecontrol.TriggerMessageResponse{Status: remotecontrol.TriggerMessageStatusRejected}, nil
	}

	return &remotecontrol.TriggerMessageResponse{Status: remotecontrol.TriggerMessageStatusAccepted}, nil
}

func (a *V201) afterTriggerMessage(request ocpp.Request, response ocpp.Response) {
	req := request.(*remotecontrol.TriggerMessageRequest)
	if response.(*remotecontrol.TriggerMessageResponse).Status != remotecontrol.TriggerMessageStatusAccepted {
		return
	}
	positions, _ := a.positions(req.Evse)

	go trigger(a.Dependencies, a.log(remotecontrol.TriggerMessageFeatureName), string(req.RequestedMessage), positions)
}

func (a *V201) changeAvailability(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*availability.ChangeAvailabilityRequest)
	logger := a.log(availability.ChangeAvailabilityFeatureName)

	positions, ok := a.positions(req.Evse)
	if !ok {
		return &availability.ChangeAvailabilityResponse{Status: availability.ChangeAvailabilityStatusRejected}, nil
	}

	value := chargepoint.AvailabilityOperative
	if req.OperationalStatus == availability.OperationalStatusInoperative {
		value = chargepoint.AvailabilityInoperative
	}
	if setAvailability(a.Dependencies, logger, positions, value) {
		return &availability.ChangeAvailabilityResponse{Status: availability.ChangeAvailabilityStatusScheduled}, nil
	}

	return &availability.ChangeAvailabilityResponse{Status: availability.ChangeAvailabilityStatusAccepted}, nil
}

// positions resolves an optional EVSE reference; nil means the whole station.
func (a *V201) positions(evse *types.EVSE) ([]position, bool) {
	if evse == nil || evse.ID == 0 {
		return allPositions(a.ChargePoint), true
	}
	if evse.ConnectorID != nil {
		if _, err := a.ChargePoint.Connector(evse.ID, *evse.ConnectorID); err != nil {
			return nil, false
		}
		return []position{{evse.ID, *evse.ConnectorID}}, true
	}
	positions := evsePositions(a.ChargePoint, evse.ID)

	return positions, len(positions) > 0
}
