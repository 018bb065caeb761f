package registry

import (
	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/authorization"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/availability"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/provisioning"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/remotecontrol"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/tariffcost"
	"github.com/lorenzodonini/ocpp-go/ocpp2.0.1/transactions"
	"github.com/sirupsen/logrus"
)

// V201 lists the OCPP 2.0.1 actions a simulated charging station takes part in.
var V201 = []Row{
	{Message: authorization.AuthorizeFeatureName, Direction: Outgoing},
	{Message: provisioning.BootNotificationFeatureName, Direction: Outgoing},
	{Message: availability.HeartbeatFeatureName, Direction: Outgoing},
	{Message: availability.StatusNotificationFeatureName, Direction: Outgoing},
	{Message: transactions.TransactionEventFeatureName, Direction: Outgoing},

	{Message: availability.ChangeAvailabilityFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return &availability.ChangeAvailabilityResponse{Status: availability.ChangeAvailabilityStatusAccepted}
	}},
	{Message: provisioning.ResetFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return &provisioning.ResetResponse{Status: provisioning.ResetStatusAccepted}
	}},
	{Message: remotecontrol.RequestStartTransactionFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return &remotecontrol.RequestStartTransactionResponse{Status: remotecontrol.RequestStartStopStatusAccepted}
	}},
	{Message: remotecontrol.RequestStopTransactionFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return &remotecontrol.RequestStopTransactionResponse{Status: remotecontrol.RequestStartStopStatusAccepted}
	}},
	{Message: remotecontrol.UnlockConnectorFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return &remotecontrol.UnlockConnectorResponse{Status: remotecontrol.UnlockStatusUnlocked}
	}},
	{Message: remotecontrol.TriggerMessageFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return &remotecontrol.TriggerMessageResponse{Status: remotecontrol.TriggerMessageStatusAccepted}
	}},
	{Message: tariffcost.CostUpdatedFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return &tariffcost.CostUpdatedResponse{}
	}},
}

func NewV201(logger *logrus.Entry) *Registry {
	return New(V201, logger)
}
