package registry

import (
	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/firmware"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/localauth"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/remotetrigger"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/reservation"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/smartcharging"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"
)

// V16 lists every OCPP 1.6 action with its default accepted reply.
var V16 = []Row{
	{Message: core.AuthorizeFeatureName, Direction: Outgoing},
	{Message: core.BootNotificationFeatureName, Direction: Outgoing},
	{Message: core.HeartbeatFeatureName, Direction: Outgoing},
	{Message: core.MeterValuesFeatureName, Direction: Outgoing},
	{Message: core.StartTransactionFeatureName, Direction: Outgoing},
	{Message: core.StopTransactionFeatureName, Direction: Outgoing},
	{Message: core.StatusNotificationFeatureName, Direction: Outgoing},
	{Message: firmware.DiagnosticsStatusNotificationFeatureName, Direction: Outgoing},
	{Message: firmware.FirmwareStatusNotificationFeatureName, Direction: Outgoing},

	{Message: core.DataTransferFeatureName, Direction: Bidirectional, NewReply: func() ocpp.Response {
		return core.NewDataTransferConfirmation(core.DataTransferStatusAccepted)
	}},

	{Message: core.ChangeAvailabilityFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return core.NewChangeAvailabilityConfirmation(core.AvailabilityStatusAccepted)
	}},
	{Message: core.ChangeConfigurationFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return core.NewChangeConfigurationConfirmation(core.ConfigurationStatusAccepted)
	}},
	{Message: core.ClearCacheFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return core.NewClearCacheConfirmation(core.ClearCacheStatusAccepted)
	}},
	{Message: core.GetConfigurationFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return core.NewGetConfigurationConfirmation(nil)
	}},
	{Message: core.RemoteStartTransactionFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return core.NewRemoteStartTransactionConfirmation(types.RemoteStartStopStatusAccepted)
	}},
	{Message: core.RemoteStopTransactionFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return core.NewRemoteStopTransactionConfirmation(types.RemoteStartStopStatusAccepted)
	}},
	{Message: core.ResetFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return core.NewResetConfirmation(core.ResetStatusAccepted)
	}},
	{Message: core.UnlockConnectorFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return core.NewUnlockConnectorConfirmation(core.UnlockStatusUnlocked)
	}},

	{Message: firmware.GetDiagnosticsFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return firmware.NewGetDiagnosticsConfirmation()
	}},
	{Message: firmware.UpdateFirmwareFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return firmware.NewUpdateFirmwareConfirmation()
	}},

	{Message: localauth.GetLocalListVersionFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return localauth.NewGetLocalListVersionConfirmation(0)
	}},
	{Message: localauth.SendLocalListFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return localauth.NewSendLocalListConfirmation(localauth.UpdateStatusAccepted)
	}},

	{Message: reservation.ReserveNowFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return reservation.NewReserveNowConfirmation(reservation.ReservationStatusAccepted)
	}},
	{Message: reservation.CancelReservationFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return reservation.NewCancelReservationConfirmation(reservation.CancelReservationStatusAccepted)
	}},

	{Message: remotetrigger.TriggerMessageFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return remotetrigger.NewTriggerMessageConfirmation(remotetrigger.TriggerMessageStatusAccepted)
	}},

	{Message: smartcharging.SetChargingProfileFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return smartcharging.NewSetChargingProfileConfirmation(smartcharging.ChargingProfileStatusAccepted)
	}},
	{Message: smartcharging.ClearChargingProfileFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return smartcharging.NewClearChargingProfileConfirmation(smartcharging.ClearChargingProfileStatusAccepted)
	}},
	{Message: smartcharging.GetCompositeScheduleFeatureName, Direction: Incoming, NewReply: func() ocpp.Response {
		return smartcharging.NewGetCompositeScheduleConfirmation(smartcharging.GetCompositeScheduleStatusAccepted)
	}},
}

func NewV16(logger *logrus.Entry) *Registry {
	return New(V16, logger)
}
