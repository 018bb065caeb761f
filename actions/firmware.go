package actions

import (
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/firmware"

	"charge_point_twin/registry"
)

// FirmwareProfileActions acknowledges diagnostics and firmware requests without acting on them.
type FirmwareProfileActions struct {
	Dependencies
}

func InitializeFirmwareProfileActions(d Dependencies) *FirmwareProfileActions {
	return &FirmwareProfileActions{Dependencies: d}
}

func (a *FirmwareProfileActions) OnGetDiagnostics(request *firmware.GetDiagnosticsRequest) (*firmware.GetDiagnosticsConfirmation, error) {
	return registry.Reply[*firmware.GetDiagnosticsConfirmation](a.Registry, firmware.GetDiagnosticsFeatureName, request)
}

func (a *FirmwareProfileActions) OnUpdateFirmware(request *firmware.UpdateFirmwareRequest) (*firmware.UpdateFirmwareConfirmation, error) {
	return registry.Reply[*firmware.UpdateFirmwareConfirmation](a.Registry, firmware.UpdateFirmwareFeatureName, request)
}
