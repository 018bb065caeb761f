package backend

import (
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/localauth"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"

	"charge_point_twin/chargepoint"
)

// Session builds the in-memory session of the charge point record.
func (cp *ChargePoint) Session(configuration *chargepoint.Configuration) *chargepoint.ChargePoint {
	evses := make([]*chargepoint.Evse, 0, len(cp.Evses))
	for _, e := range cp.Evses {
		evse := &chargepoint.Evse{
			ID:                e.ID,
			EvseID:            e.EvseID,
			Status:            e.Status,
			ActiveConnectorID: e.ActiveConnectorID,
		}
		for _, c := range e.Connectors {
			evse.Connectors = append(evse.Connectors, c.session(cp.VoltageDC))
		}
		evses = append(evses, evse)
	}

	identity := chargepoint.Identity{
		ID:                 cp.ID,
		CID:                cp.CID,
		Vendor:             cp.Vendor,
		Model:              cp.Model,
		Password:           cp.Password,
		CsmsURL:            cp.CsmsURL,
		Protocol:           cp.OcppProtocol,
		VoltageDC:          cp.VoltageDC,
		MaximumDCPower:     cp.MaximumDCPower,
		TokenCostPerMinute: cp.TokenCostPerMinute,
		QuotaID:            cp.QuotaID,
		UserID:             cp.UserID,
	}

	return chargepoint.New(identity, evses, configuration, chargepoint.NewLocalList(cp.AuthorizationListVersion, cp.localList()))
}

func (c Connector) session(voltage float64) *chargepoint.Connector {
	connector := &chargepoint.Connector{
		ID:             c.ID,
		ConnectorID:    c.ConnectorID,
		Type:           c.ConnectorType,
		Status:         c.Status,
		Availability:   chargepoint.AvailabilityOperative,
		CurrentPower:   c.CurrentDCPower,
		CurrentCurrent: c.CurrentDCCurrent,
		CurrentVoltage: c.CurrentDCVoltage,
		CurrentEnergy:  c.CurrentEnergy,
		TotalEnergy:    c.TotalEnergy,
		TransactionID:  c.TransactionID,
		VehicleID:      c.VehicleID,
	}
	if connector.CurrentVoltage == 0 {
		connector.CurrentVoltage = voltage
	}
	if c.Soc != nil {
		connector.Soc = int(*c.Soc)
	}
	if c.IdTag != nil {
		connector.IdTag = *c.IdTag
	}

	return connector
}

func (cp *ChargePoint) localList() []localauth.AuthorizationData {
	entries := make([]localauth.AuthorizationData, 0, len(cp.LocalAuthList))
	for _, entry := range cp.LocalAuthList {
		data := localauth.AuthorizationData{IdTag: entry.IdTag}
		if entry.IdTagInfo != nil {
			info := &types.IdTagInfo{
				Status:      types.AuthorizationStatus(entry.IdTagInfo.Status),
				ParentIdTag: entry.IdTagInfo.ParentIdTag,
			}
			if entry.IdTagInfo.ExpiryDate != nil {
				info.ExpiryDate = types.NewDateTime(*entry.IdTagInfo.ExpiryDate)
			}
			data.IdTagInfo = info
		}
		entries = append(entries, data)
	}

	return entries
}
