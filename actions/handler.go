package actions

import "charge_point_twin/station"

// V16 serves every OCPP 1.6 feature profile of a session.
type V16 struct {
	*CoreProfileActions
	*LocalAuthProfileActions
	*FirmwareProfileActions
	*ReservationProfileActions
	*RemoteTriggerProfileActions
	*SmartChargingProfileActions
}

var _ station.V16Handler = (*V16)(nil)

// NewV16 installs the 1.6 replies on d.Registry and returns the handler to pass to the station.
func NewV16(d Dependencies) *V16 {
	return &V16{
		CoreProfileActions:          InitializeCoreProfileActions(d),
		LocalAuthProfileActions:     InitializeLocalAuthProfileActions(d),
		FirmwareProfileActions:      InitializeFirmwareProfileActions(d),
		ReservationProfileActions:   InitializeReservationProfileActions(d),
		RemoteTriggerProfileActions: InitializeRemoteTriggerProfileActions(d),
		SmartChargingProfileActions: InitializeSmartChargingProfileActions(d),
	}
}
