package actions

import (
	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/remotetrigger"

	"charge_point_twin/registry"
)

type RemoteTriggerProfileActions struct {
	Dependencies
}

func InitializeRemoteTriggerProfileActions(d Dependencies) *RemoteTriggerProfileActions {
	a := &RemoteTriggerProfileActions{Dependencies: d}

	d.install(remotetrigger.TriggerMessageFeatureName,
		registry.WithReply(a.triggerMessage),
		registry.WithAfter(a.afterTriggerMessage),
	)

	return a
}

func (a *RemoteTriggerProfileActions) OnTriggerMessage(request *remotetrigger.TriggerMessageRequest) (*remotetrigger.TriggerMessageConfirmation, error) {
	return registry.Reply[*remotetrigger.TriggerMessageConfirmation](a.Registry, remotetrigger.TriggerMessageFeatureName, request)
}

func (a *RemoteTriggerProfileActions) triggerMessage(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*remotetrigger.TriggerMessageRequest)

	if !triggerable(string(req.RequestedMessage)) {
		return remotetrigger.NewTriggerMessageConfirmation(remotetrigger.TriggerMessageStatusNotImplemented), nil
	}
	if req.ConnectorId != nil && *req.ConnectorId != 0 {
		if _, _, err := a.ChargePoint.ToNested(*req.ConnectorId); err != nil {
			return remotetrigger.NewTriggerMessageConfirmation(remotetrigger.TriggerMessageStatusRejected), nil
		}
	}

	return remotetrigger.NewTriggerMessageConfirmation(remotetrigger.TriggerMessageStatusAccepted), nil
}

func (a *RemoteTriggerProfileActions) afterTriggerMessage(request ocpp.Request, response ocpp.Response) {
	req := request.(*remotetrigger.TriggerMessageRequest)
	if response.(*remotetrigger.TriggerMessageConfirmation).Status != remotetrigger.TriggerMessageStatusAccepted {
		return
	}

	positions := allPositions(a.ChargePoint)
	if req.ConnectorId != nil && *req.ConnectorId != 0 {
		evse, connector, err := a.ChargePoint.ToNested(*req.ConnectorId)
		if err != nil {
			return
		}
		positions = []position{{evse, connector}}
	}

	go trigger(a.Dependencies, a.log(remotetrigger.TriggerMessageFeatureName), string(req.RequestedMessage), positions)
}
