package backend

import (
	"time"

	"charge_point_twin/chargepoint"
)

type TransactionStatus string

const (
	TransactionStatusAccepted  TransactionStatus = "Accepted"
	TransactionStatusRejected  TransactionStatus = "Rejected"
	TransactionStatusPending   TransactionStatus = "Pending"
	TransactionStatusUnknown   TransactionStatus = "Unknown"
	TransactionStatusRunning   TransactionStatus = "Charging"
	TransactionStatusCompleted TransactionStatus = "Completed"
	TransactionStatusAborted   TransactionStatus = "Aborted"
	TransactionStatusFaulted   TransactionStatus = "Faulted"
)

type VehicleStatus string

const (
	VehicleStatusAvailable     VehicleStatus = "available"
	VehicleStatusCharging      VehicleStatus = "charging"
	VehicleStatusOccupied      VehicleStatus = "occupied"
	VehicleStatusDriving       VehicleStatus = "driving"
	VehicleStatusReadyToCharge VehicleStatus = "ready-to-charge"
	VehicleStatusOutOfService  VehicleStatus = "out-of-service"
	VehicleStatusPending       VehicleStatus = "pending"
)

type IdTagInfo struct {
	Status      string     `json:"status"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	ParentIdTag string     `json:"parent_id_tag,omitempty"`
}

type AuthorizationData struct {
	IdTag     string     `json:"id_tag"`
	IdTagInfo *IdTagInfo `json:"id_tag_info,omitempty"`
}

type Connector struct {
	ID               int                         `json:"id"`
	ConnectorID      int                         `json:"connectorid"`
	Status           chargepoint.ConnectorStatus `json:"status"`
	ConnectorType    string                      `json:"connector_type"`
	CurrentDCPower   float64                     `json:"current_dc_power"`
	CurrentDCCurrent float64                     `json:"current_dc_current"`
	CurrentDCVoltage float64                     `json:"current_dc_voltage"`
	CurrentEnergy    float64                     `json:"current_energy"`
	TotalEnergy      float64                     `json:"total_energy"`
	Soc              *float64                    `json:"soc"`
	IdTag            *string                     `json:"id_tag"`
	Transactionid    *int                        `json:"transactionid"`
	TransactionID    *int                        `json:"transaction_id"`
	VehicleID        *int                        `json:"vehicle_id"`
}

type Evse struct {
	ID                int                    `json:"id"`
	EvseID            int                    `json:"evseid"`
	Status            chargepoint.EvseStatus `json:"status"`
	ActiveConnectorID *int                   `json:"active_connector_id"`
	Connectors        []Connector            `json:"connectors"`
}

type ChargePoint struct {
	ID                       int                  `json:"id"`
	CID                      string               `json:"cid"`
	Vendor                   string               `json:"vendor"`
	Model                    string               `json:"model"`
	Password                 string               `json:"password"`
	CsmsURL                  string               `json:"csms_url"`
	OcppProtocol             chargepoint.Protocol `json:"ocpp_protocol"`
	VoltageDC                float64              `json:"voltage_dc"`
	MaximumDCPower           float64              `json:"maximum_dc_power"`
	TokenCostPerMinute       float64              `json:"token_cost_per_minute"`
	QuotaID                  *int                 `json:"quota_id"`
	OcppConfigurationV16ID   *int                 `json:"ocpp_configuration_v16_id"`
	UserID                   int                  `json:"user_id"`
	Status                   string               `json:"status"`
	Evses                    []Evse               `json:"evses"`
	LocalAuthList            []AuthorizationData  `json:"local_auth_list"`
	AuthorizationListVersion int                  `json:"authorization_list_version"`
}

type Transaction struct {
	ID            int               `json:"id"`
	ConnectorID   int               `json:"connector_id"`
	VehicleID     int               `json:"vehicle_id"`
	UserID        int               `json:"user_id"`
	EvseID        *int              `json:"evse_id"`
	ChargePointID *int              `json:"charge_point_id"`
	Status        TransactionStatus `json:"status"`
	StartTime     *time.Time        `json:"start_time"`
	EndTime       *time.Time        `json:"end_time"`
	Energy        float64           `json:"energy"`
	Transactionid *int              `json:"transactionid"`
}

// TransactionUpdate is a partial update; nil fields are left untouched.
type TransactionUpdate struct {
	Status        *TransactionStatus `json:"status,omitempty"`
	Transactionid *int               `json:"transactionid,omitempty"`
	Energy        *float64           `json:"energy,omitempty"`
	EndTime       *time.Time         `json:"end_time,omitempty"`
}

type Vehicle struct {
	ID                    int           `json:"id"`
	Name                  string        `json:"name"`
	IdTagSuffix           string        `json:"id_tag_suffix"`
	BatteryCapacity       float64       `json:"battery_capacity"`
	MaximumDCChargingRate float64       `json:"maximum_dc_charging_rate"`
	Soc                   float64       `json:"soc"`
	Status                VehicleStatus `json:"status"`
}

// ConnectorUpdate replaces the live values of a connector.
type ConnectorUpdate struct {
	CurrentDCPower   float64 `json:"current_dc_power"`
	CurrentDCCurrent float64 `json:"current_dc_current"`
	CurrentDCVoltage float64 `json:"current_dc_voltage"`
	CurrentEnergy    float64 `json:"current_energy"`
	TotalEnergy      float64 `json:"total_energy"`
	Soc              *int    `json:"soc"`
	IdTag            *string `json:"id_tag"`
	Transactionid    *int    `json:"transactionid"`
	TransactionID    *int    `json:"transaction_id"`
}

type StartTransactionRequest struct {
	ConnectorID int `json:"connector_id"`
}

type StopTransactionRequest struct {
	TransactionID int `json:"transaction_id"`
}

type ActionMessage struct {
	Message string `json:"message"`
}
