package actions

import (
	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/smartcharging"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/michalkurzeja/go-clock"

	"charge_point_twin/chargepoint"
	"charge_point_twin/registry"
	"charge_point_twin/schedule"
)

type SmartChargingProfileActions struct {
	Dependencies
}

func InitializeSmartChargingProfileActions(d Dependencies) *SmartChargingProfileActions {
	a := &SmartChargingProfileActions{Dependencies: d}

	d.install(smartcharging.SetChargingProfileFeatureName, registry.WithReply(a.setChargingProfile))
	d.install(smartcharging.ClearChargingProfileFeatureName, registry.WithReply(a.clearChargingProfile))
	d.install(smartcharging.GetCompositeScheduleFeatureName, registry.WithReply(a.getCompositeSchedule))

	return a
}

func (a *SmartChargingProfileActions) OnSetChargingProfile(request *smartcharging.SetChargingProfileRequest) (*smartcharging.SetChargingProfileConfirmation, error) {
	return registry.Reply[*smartcharging.SetChargingProfileConfirmation](a.Registry, smartcharging.SetChargingProfileFeatureName, request)
}

func (a *SmartChargingProfileActions) OnClearChargingProfile(request *smartcharging.ClearChargingProfileRequest) (*smartcharging.ClearChargingProfileConfirmation, error) {
	return registry.Reply[*smartcharging.ClearChargingProfileConfirmation](a.Registry, smartcharging.ClearChargingProfileFeatureName, request)
}

func (a *SmartChargingProfileActions) OnGetCompositeSchedule(request *smartcharging.GetCompositeScheduleRequest) (*smartcharging.GetCompositeScheduleConfirmation, error) {
	return registry.Reply[*smartcharging.GetCompositeScheduleConfirmation](a.Registry, smartcharging.GetCompositeScheduleFeatureName, request)
}

func (a *SmartChargingProfileActions) setChargingProfile(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*smartcharging.SetChargingProfileRequest)

	if err := a.ChargePoint.AddChargingProfile(req.ConnectorId, req.ChargingProfile); err != nil {
		a.log(smartcharging.SetChargingProfileFeatureName).WithError(err).Warn("charging profile rejected")
		return smartcharging.NewSetChargingProfileConfirmation(smartcharging.ChargingProfileStatusRejected), nil
	}

	return smartcharging.NewSetChargingProfileConfirmation(smartcharging.ChargingProfileStatusAccepted), nil
}

func (a *SmartChargingProfileActions) clearChargingProfile(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*smartcharging.ClearChargingProfileRequest)

	removed := a.ChargePoint.Profiles.Clear(chargepoint.ClearFilter{
		ID:         req.Id,
		Connector:  req.ConnectorId,
		Purpose:    req.ChargingProfilePurpose,
		StackLevel: req.StackLevel,
	})
	if removed == 0 {
		return smartcharging.NewClearChargingProfileConfirmation(smartcharging.ClearChargingProfileStatusUnknown), nil
	}
	a.log(smartcharging.ClearChargingProfileFeatureName).Infof("%d charging profiles cleared", removed)

	return smartcharging.NewClearChargingProfileConfirmation(smartcharging.ClearChargingProfileStatusAccepted), nil
}

func (a *SmartChargingProfileActions) getCompositeSchedule(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*smartcharging.GetCompositeScheduleRequest)

	if req.ConnectorId != 0 {
		if _, _, err := a.ChargePoint.ToNested(req.ConnectorId); err != nil {
			return smartcharging.NewGetCompositeScheduleConfirmation(smartcharging.GetCompositeScheduleStatusRejected), nil
		}
	}

	now := clock.Now()
	connectorID := req.ConnectorId
	confirmation := smartcharging.NewGetCompositeScheduleConfirmation(smartcharging.GetCompositeScheduleStatusAccepted)
	confirmation.ConnectorId = &connectorID
	confirmation.ScheduleStart = types.NewDateTime(now)
	confirmation.ChargingSchedule = schedule.Composite(a.ChargePoint.Profiles.Applicable(req.ConnectorId), now, req.Duration, req.ChargingRateUnit)

	return confirmation, nil
}
