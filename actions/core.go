// Package actions answers the requests the CSMS sends to a simulated charge point.
package actions

import (
	"context"
	"strconv"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"charge_point_twin/backend"
	"charge_point_twin/chargepoint"
	"charge_point_twin/registry"
	"charge_point_twin/station"
)

func logDefault(chargePointId string, feature string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"client": chargePointId, "message": feature})
}

// Backend is the part of the system of record the handlers write to.
type Backend interface {
	UpdateConfiguration(ctx context.Context, id int, values map[string]interface{}) error
	StartTransaction(ctx context.Context, userID, connectorID int) (*backend.Transaction, error)
	StopTransaction(ctx context.Context, userID, transactionID int) (*backend.ActionMessage, error)
	UpdateConnectorStatus(ctx context.Context, id int, status chargepoint.ConnectorStatus) error
}

// Dependencies are shared by every profile of a session.
type Dependencies struct {
	ChargePoint *chargepoint.ChargePoint
	Station     station.Station
	Registry    *registry.Registry
	Backend     Backend
	// Timeout bounds each call to the system of record.
	Timeout time.Duration
	// TriggerDelay holds back a triggered message until the TriggerMessage reply is on the wire.
	TriggerDelay time.Duration
}

func (d Dependencies) backendContext() (context.Context, context.CancelFunc) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return context.WithTimeout(context.Background(), timeout)
}

func (d Dependencies) triggerDelay() time.Duration {
	if d.TriggerDelay <= 0 {
		return 500 * time.Millisecond
	}

	return d.TriggerDelay
}

func (d Dependencies) log(feature string) *logrus.Entry {
	return logDefault(d.ChargePoint.CID, feature)
}

// install replaces the reply of a registry action. The rows of both protocol tables cover
// every feature installed here.
func (d Dependencies) install(feature string, options ...registry.Option) {
	if err := d.Registry.Override(feature, options...); err != nil {
		d.log(feature).WithError(err).Error("failed to install handler")
	}
}

type CoreProfileActions struct {
	Dependencies
}

func InitializeCoreProfileActions(d Dependencies) *CoreProfileActions {
	a := &CoreProfileActions{Dependencies: d}

	d.install(core.ResetFeatureName, registry.WithReply(a.reset))
	d.install(core.GetConfigurationFeatureName, registry.WithReply(a.getConfiguration))
	d.install(core.ChangeConfigurationFeatureName, registry.WithReply(a.changeConfiguration))
	d.install(core.RemoteStartTransactionFeatureName, registry.WithReply(a.remoteStartTransaction))
	d.install(core.RemoteStopTransactionFeatureName, registry.WithReply(a.remoteStopTransaction))
	d.install(core.ChangeAvailabilityFeatureName, registry.WithReply(a.changeAvailability))
	d.install(core.UnlockConnectorFeatureName, registry.WithReply(a.unlockConnector))
	d.install(core.ClearCacheFeatureName, registry.WithReply(a.clearCache))
	d.install(core.DataTransferFeatureName, registry.WithReply(a.dataTransfer))

	return a
}

func (a *CoreProfileActions) OnReset(request *core.ResetRequest) (*core.ResetConfirmation, error) {
	return registry.Reply[*core.ResetConfirmation](a.Registry, core.ResetFeatureName, request)
}

func (a *CoreProfileActions) OnGetConfiguration(request *core.GetConfigurationRequest) (*core.GetConfigurationConfirmation, error) {
	return registry.Reply[*core.GetConfigurationConfirmation](a.Registry, core.GetConfigurationFeatureName, request)
}

func (a *CoreProfileActions) OnChangeConfiguration(request *core.ChangeConfigurationRequest) (*core.ChangeConfigurationConfirmation, error) {
	return registry.Reply[*core.ChangeConfigurationConfirmation](a.Registry, core.ChangeConfigurationFeatureName, request)
}

func (a *CoreProfileActions) OnRemoteStartTransaction(request *core.RemoteStartTransactionRequest) (*core.RemoteStartTransactionConfirmation, error) {
	return registry.Reply[*core.RemoteStartTransactionConfirmation](a.Registry, core.RemoteStartTransactionFeatureName, request)
}

func (a *CoreProfileActions) OnRemoteStopTransaction(request *core.RemoteStopTransactionRequest) (*core.RemoteStopTransactionConfirmation, error) {
	return registry.Reply[*core.RemoteStopTransactionConfirmation](a.Registry, core.RemoteStopTransactionFeatureName, request)
}

func (a *CoreProfileActions) OnChangeAvailability(request *core.ChangeAvailabilityRequest) (*core.ChangeAvailabilityConfirmation, error) {
	return registry.Reply[*core.ChangeAvailabilityConfirmation](a.Registry, core.ChangeAvailabilityFeatureName, request)
}

func (a *CoreProfileActions) OnUnlockConnector(request *core.UnlockConnectorRequest) (*core.UnlockConnectorConfirmation, error) {
	return registry.Reply[*core.UnlockConnectorConfirmation](a.Registry, core.UnlockConnectorFeatureName, request)
}

func (a *CoreProfileActions) OnClearCache(request *core.ClearCacheRequest) (*core.ClearCacheConfirmation, error) {
	return registry.Reply[*core.ClearCacheConfirmation](a.Registry, core.ClearCacheFeatureName, request)
}

func (a *CoreProfileActions) OnDataTransfer(request *core.DataTransferRequest) (*core.DataTransferConfirmation, error) {
	return registry.Reply[*core.DataTransferConfirmation](a.Registry, core.DataTransferFeatureName, request)
}

func (a *CoreProfileActions) reset(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.ResetRequest)

	if !a.ChargePoint.RequestReset(string(req.Type)) {
		a.log(core.ResetFeatureName).Warnf("reset %s rejected, %s reset pending", req.Type, a.ChargePoint.PendingReset())
		return core.NewResetConfirmation(core.ResetStatusRejected), nil
	}

	return core.NewResetConfirmation(core.ResetStatusAccepted), nil
}

func (a *CoreProfileActions) getConfiguration(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.GetConfigurationRequest)

	keys, unknown := a.ChargePoint.Configuration.Get(req.Key)
	confirmation := core.NewGetConfigurationConfirmation(keys)
	confirmation.UnknownKey = unknown

	return confirmation, nil
}

func (a *CoreProfileActions) changeConfiguration(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.ChangeConfigurationRequest)
	logger := a.log(core.ChangeConfigurationFeatureName).WithField("key", req.Key)
	configuration := a.ChargePoint.Configuration

	previous, _ := configuration.Get([]string{req.Key})
	if err := configuration.Set(req.Key, req.Value); err != nil {
		logger.WithError(err).Warn("configuration change rejected")
		if errors.Is(err, chargepoint.ErrUnknownKey) {
			return core.NewChangeConfigurationConfirmation(core.ConfigurationStatusNotSupported), nil
		}
		return core.NewChangeConfigurationConfirmation(core.ConfigurationStatusRejected), nil
	}

	ctx, cancel := a.backendContext()
	defer cancel()

	values := map[string]interface{}{req.Key: configuration.Typed(req.Key)}
	if err := a.Backend.UpdateConfiguration(ctx, configuration.ID, values); err != nil {
		logger.WithError(err).Error("failed to store configuration change")
		if len(previous) == 1 {
			if err := configuration.Restore(req.Key, previous[0].Value); err != nil {
				logger.WithError(err).Error("failed to restore configuration value")
			}
		}
		return core.NewChangeConfigurationConfirmation(core.ConfigurationStatusRejected), nil
	}
	logger.Infof("configuration set to %q", req.Value)

	return core.NewChangeConfigurationConfirmation(core.ConfigurationStatusAccepted), nil
}

func (a *CoreProfileActions) remoteStartTransaction(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.RemoteStartTransactionRequest)
	logger := a.log(core.RemoteStartTransactionFeatureName)

	if req.ConnectorId == nil {
		logger.Warn("remote start without connector rejected")
		return core.NewRemoteStartTransactionConfirmation(types.RemoteStartStopStatusRejected), nil
	}
	evse, connector, err := a.ChargePoint.ToNested(*req.ConnectorId)
	if err != nil {
		logger.WithError(err).Warn("remote start rejected")
		return core.NewRemoteStartTransactionConfirmation(types.RemoteStartStopStatusRejected), nil
	}
	if !remoteStart(a.Dependencies, logger, evse, connector) {
		return core.NewRemoteStartTransactionConfirmation(types.RemoteStartStopStatusRejected), nil
	}

	return core.NewRemoteStartTransactionConfirmation(types.RemoteStartStopStatusAccepted), nil
}

func (a *CoreProfileActions) remoteStopTransaction(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.RemoteStopTransactionRequest)
	logger := a.log(core.RemoteStopTransactionFeatureName).WithField("transaction", req.TransactionId)

	if !remoteStop(a.Dependencies, logger, strconv.Itoa(req.TransactionId)) {
		return core.NewRemoteStopTransactionConfirmation(types.RemoteStartStopStatusRejected), nil
	}

	return core.NewRemoteStopTransactionConfirmation(types.RemoteStartStopStatusAccepted), nil
}

func (a *CoreProfileActions) changeAvailability(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.ChangeAvailabilityRequest)
	logger := a.log(core.ChangeAvailabilityFeatureName)

	var positions []position
	if req.ConnectorId == 0 {
		positions = allPositions(a.ChargePoint)
	} else {
		evse, connector, err := a.ChargePoint.ToNested(req.ConnectorId)
		if err != nil {
			logger.WithError(err).Warn("availability change rejected")
			return core.NewChangeAvailabilityConfirmation(core.AvailabilityStatusRejected), nil
		}
		positions = []position{{evse, connector}}
	}

	availability := chargepoint.AvailabilityOperative
	if req.Type == core.AvailabilityTypeInoperative {
		availability = chargepoint.AvailabilityInoperative
	}
	if setAvailability(a.Dependencies, logger, positions, availability) {
		return core.NewChangeAvailabilityConfirmation(core.AvailabilityStatusScheduled), nil
	}

	return core.NewChangeAvailabilityConfirmation(core.AvailabilityStatusAccepted), nil
}

func (a *CoreProfileActions) unlockConnector(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.UnlockConnectorRequest)

	if _, _, err := a.ChargePoint.ToNested(req.ConnectorId); err != nil {
		return core.NewUnlockConnectorConfirmation(core.UnlockStatusNotSupported), nil
	}

	return core.NewUnlockConnectorConfirmation(core.UnlockStatusUnlocked), nil
}

func (a *CoreProfileActions) clearCache(ocpp.Request) (ocpp.Response, error) {
	a.ChargePoint.ClearCache()

	return core.NewClearCacheConfirmation(core.ClearCacheStatusAccepted), nil
}

func (a *CoreProfileActions) dataTransfer(request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.DataTransferRequest)
	a.log(core.DataTransferFeatureName).Debugf("data transfer from vendor %s ignored", req.VendorId)

	return core.NewDataTransferConfirmation(core.DataTransferStatusUnknownVendorId), nil
}
