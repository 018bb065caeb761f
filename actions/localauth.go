package actions

import (
	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/localauth"

	"charge_point_twin/chargepoint"
	"charge_point_twin/registry"
)

type LocalAuthProfileActions struct {
	Dependencies
}

func InitializeLocalAuthProfileActions(d Dependencies) *LocalAuthProfileActions {
	a := &LocalAuthProfileActions{Dependencies: d}

	d.install(localauth.SendLocalListFeatureName, registry.WithReply(a.sendLocalList))
	d.install(localauth.GetLocalListVersionFeatureName, registry.WithReply(a.getLocalListVersion))

	return a
}

func (a *LocalAuthProfileActions) OnSendLocalList(request *localauth.SendLocalListRequest) (*localauth.SendLocalListConfirmation, error) {
	return registry.Reply[*localauth.SendLocalListConfirmation](a.Registry, localauth.SendLocalListFeatureName, request)
}

func (a *LocalAuthProfileActions) OnGetLocalListVersion(request *localauth.GetLocalListVersionRequest) (*localauth.GetLocalListVersionConfirmation, error) {
	return registry.Reply[*localauth.GetLocalListVersionConfirmation](a.Registry, localauth.GetLocalListVersionFeatureName, request)
}

func (a *LocalAuthProfileActions) sendLocalList(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*localauth.SendLocalListRequest)
	logger := a.log(localauth.SendLocalListFeatureName).WithField("version", req.ListVersion)
	configuration := a.ChargePoint.Configuration

	if !configuration.Bool(chargepoint.KeyLocalAuthListEnabled) {
		return localauth.NewSendLocalListConfirmation(localauth.UpdateStatusNotSupported), nil
	}
	if max := configuration.Int(chargepoint.KeySendLocalListMaxLength); len(req.LocalAuthorizationList) > max {
		logger.Warnf("%d entries sent, at most %d accepted per request", len(req.LocalAuthorizationList), max)
		return localauth.NewSendLocalListConfirmation(localauth.UpdateStatusFailed), nil
	}

	maxLength := configuration.Int(chargepoint.KeyLocalAuthListMaxLength)
	var err error
	switch req.UpdateType {
	case localauth.UpdateTypeDifferential:
		err = a.ChargePoint.LocalList.ApplyDifferential(req.ListVersion, req.LocalAuthorizationList, maxLength)
	default:
		err = a.ChargePoint.LocalList.ReplaceAll(req.ListVersion, req.LocalAuthorizationList, maxLength)
	}
	if err != nil {
		logger.WithError(err).Warnf("%s update failed", req.UpdateType)
		return localauth.NewSendLocalListConfirmation(localauth.UpdateStatusFailed), nil
	}
	logger.Infof("%s update applied", req.UpdateType)

	return localauth.NewSendLocalListConfirmation(localauth.UpdateStatusAccepted), nil
}

func (a *LocalAuthProfileActions) getLocalListVersion(ocpp.Request) (ocpp.Response, error) {
	// -1 tells the CSMS the local list is not supported.
	if !a.ChargePoint.Configuration.Bool(chargepoint.KeyLocalAuthListEnabled) {
		return localauth.NewGetLocalListVersionConfirmation(-1), nil
	}

	return localauth.NewGetLocalListVersionConfirmation(a.ChargePoint.LocalList.Version()), nil
}
