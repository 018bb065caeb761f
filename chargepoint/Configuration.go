package chargepoint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
)

var (
	ErrUnknownKey = errors.New("unknown configuration key")
	ErrReadOnly   = errors.New("configuration key is read-only")
)

const (
	KeyAuthorizationCacheEnabled     = "AuthorizationCacheEnabled"
	KeyChargeProfileMaxStackLevel    = "ChargeProfileMaxStackLevel"
	KeyHeartbeatInterval             = "HeartbeatInterval"
	KeyLocalAuthListEnabled          = "LocalAuthListEnabled"
	KeyLocalAuthListMaxLength        = "LocalAuthListMaxLength"
	KeyMaxChargingProfilesInstalled  = "MaxChargingProfilesInstalled"
	KeyMeterValueSampleInterval      = "MeterValueSampleInterval"
	KeyNumberOfConnectors            = "NumberOfConnectors"
	KeyReserveConnectorZeroSupported = "ReserveConnectorZeroSupported"
	KeySendLocalListMaxLength        = "SendLocalListMaxLength"
)

type valueType int

const (
	typeBool valueType = iota
	typeInt
	typeList
	typeString
)

var readOnlyKeys = []string{
	"AuthorizeRemoteTxRequests",
	"GetConfigurationMaxKeys",
	"MeterValuesAlignedDataMaxLength",
	"MeterValuesSampledDataMaxLength",
	KeyNumberOfConnectors,
	"ConnectorPhaseRotationMaxLength",
	"StopTxnAlignedDataMaxLength",
	"StopTxnSampledDataMaxLength",
	"SupportedFeatureProfilesMaxLength",
	KeyLocalAuthListMaxLength,
	KeySendLocalListMaxLength,
	KeyReserveConnectorZeroSupported,
	KeyChargeProfileMaxStackLevel,
	"ChargingScheduleAllowedChargingRateUnit",
	"ChargingScheduleMaxPeriods",
	"ConnectorSwitch3to1PhaseSupported",
	KeyMaxChargingProfilesInstalled,
}

var keyTypes = map[string]valueType{
	"AllowOfflineTxForUnknownId":        typeBool,
	KeyAuthorizationCacheEnabled:        typeBool,
	"AuthorizeRemoteTxRequests":         typeBool,
	"LocalAuthorizeOffline":             typeBool,
	"LocalPreAuthorize":                 typeBool,
	"StopTransactionOnEVSideDisconnect": typeBool,
	"StopTransactionOnInvalidId":        typeBool,
	"UnlockConnectorOnEVSideDisconnect": typeBool,
	KeyLocalAuthListEnabled:             typeBool,
	KeyReserveConnectorZeroSupported:    typeBool,
	"ConnectorSwitch3to1PhaseSupported": typeBool,

	"BlinkRepeat":                       typeInt,
	"ClockAlignedDataInterval":          typeInt,
	"ConnectionTimeOut":                 typeInt,
	"GetConfigurationMaxKeys":           typeInt,
	KeyHeartbeatInterval:                typeInt,
	"LightIntensity":                    typeInt,
	"MaxEnergyOnInvalidId":              typeInt,
	"MeterValuesAlignedDataMaxLength":   typeInt,
	"MeterValuesSampledDataMaxLength":   typeInt,
	KeyMeterValueSampleInterval:         typeInt,
	"MinimumStatusDuration":             typeInt,
	KeyNumberOfConnectors:               typeInt,
	"ResetRetries":                      typeInt,
	"ConnectorPhaseRotationMaxLength":   typeInt,
	"StopTxnAlignedDataMaxLength":       typeInt,
	"StopTxnSampledDataMaxLength":       typeInt,
	"SupportedFeatureProfilesMaxLength": typeInt,
	"TransactionMessageAttempts":        typeInt,
	"TransactionMessageRetryInterval":   typeInt,
	"WebSocketPingInterval":             typeInt,
	KeyLocalAuthListMaxLength:           typeInt,
	KeySendLocalListMaxLength:           typeInt,
	KeyChargeProfileMaxStackLevel:       typeInt,
	"ChargingScheduleMaxPeriods":        typeInt,
	KeyMaxChargingProfilesInstalled:     typeInt,

	"MeterValuesAlignedData":   typeList,
	"MeterValuesSampledData":   typeList,
	"StopTxnAlignedData":       typeList,
	"StopTxnSampledData":       typeList,
	"SupportedFeatureProfiles": typeList,

	"ConnectorPhaseRotation":                  typeString,
	"ChargingScheduleAllowedChargingRateUnit": typeString,
}

var defaultValues = map[string]string{
	"AllowOfflineTxForUnknownId":        "true",
	KeyAuthorizationCacheEnabled:        "false",
	"AuthorizeRemoteTxRequests":         "true",
	"ClockAlignedDataInterval":          "900",
	"ConnectionTimeOut":                 "60",
	"GetConfigurationMaxKeys":           "50",
	KeyHeartbeatInterval:                "30",
	"LocalAuthorizeOffline":             "true",
	"LocalPreAuthorize":                 "true",
	"MeterValuesAlignedDataMaxLength":   "30",
	"MeterValuesSampledData":            "Energy.Active.Import.Register,Power.Active.Import,SoC",
	"MeterValuesSampledDataMaxLength":   "30",
	KeyMeterValueSampleInterval:         "30",
	KeyNumberOfConnectors:               "1",
	"ResetRetries":                      "3",
	"StopTransactionOnEVSideDisconnect": "true",
	"StopTransactionOnInvalidId":        "true",
	"SupportedFeatureProfiles":          "Core,LocalAuthListManagement,Reservation,SmartCharging,RemoteTrigger,FirmwareManagement",
	"SupportedFeatureProfilesMaxLength": "100",
	"TransactionMessageAttempts":        "3",
	"TransactionMessageRetryInterval":   "30",
	"UnlockConnectorOnEVSideDisconnect": "true",
	KeyLocalAuthListEnabled:             "true",
	KeyLocalAuthListMaxLength:           "100",
	KeySendLocalListMaxLength:           "100",
	KeyReserveConnectorZeroSupported:    "false",
	KeyChargeProfileMaxStackLevel:       "10",
	"ChargingScheduleMaxPeriods":        "10",
	"ConnectorSwitch3to1PhaseSupported": "false",
	KeyMaxChargingProfilesInstalled:     "10",
}

// IsReadOnly reports whether key belongs to the fixed set the CSMS may not change.
func IsReadOnly(key string) bool {
	return funk.ContainsString(readOnlyKeys, key)
}

// Configuration is the OCPP 1.6 key/value store of one charge point.
// Values are kept in their wire form; typed getters parse on read.
type Configuration struct {
	ID int // system of record id

	mu     sync.RWMutex
	values map[string]*string
}

func NewConfiguration() *Configuration {
	c := &Configuration{values: make(map[string]*string, len(keyTypes))}
	for key := range keyTypes {
		if v, ok := defaultValues[key]; ok {
			value := v
			c.values[key] = &value
		} else {
			c.values[key] = nil
		}
	}

	return c
}

// Load copies the values read from the system of record over the defaults.
// Keys outside the OCPP 1.6 set are ignored; a null value unsets the key.
func (c *Configuration) Load(values map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, raw := range values {
		typ, ok := keyTypes[key]
		if !ok {
			continue
		}
		if raw == nil {
			c.values[key] = nil
			continue
		}

		value, err := encode(typ, raw)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration key %s", key)
		}
		c.values[key] = &value
	}

	return nil
}

// Get returns the requested keys with their values. With no keys every known key is returned.
// Unknown key names are reported separately and are nil when no keys were requested.
func (c *Configuration) Get(keys []string) ([]core.ConfigurationKey, []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var unknown []string
	if len(keys) == 0 {
		keys = funk.Keys(keyTypes).([]string)
		sort.Strings(keys)
	} else {
		unknown = []string{}
	}

	known := make([]core.ConfigurationKey, 0, len(keys))
	for _, key := range keys {
		value, ok := c.values[key]
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		known = append(known, core.ConfigurationKey{Key: key, Readonly: IsReadOnly(key), Value: copyValue(value)})
	}

	return known, unknown
}

// Set validates and stores a value sent by the CSMS.
func (c *Configuration) Set(key, value string) error {
	typ, ok := keyTypes[key]
	if !ok {
		return errors.Wrap(ErrUnknownKey, key)
	}
	if IsReadOnly(key) {
		return errors.Wrap(ErrReadOnly, key)
	}

	normalized, err := encode(typ, value)
	if err != nil {
		return errors.Wrapf(err, "invalid value for %s", key)
	}

	c.mu.Lock()
	c.values[key] = &normalized
	c.mu.Unlock()

	return nil
}

// Restore puts back a value read with Get, nil included. Read-only keys are not checked.
func (c *Configuration) Restore(key string, value *string) error {
	if _, ok := keyTypes[key]; !ok {
		return errors.Wrap(ErrUnknownKey, key)
	}

	c.mu.Lock()
	c.values[key] = copyValue(value)
	c.mu.Unlock()

	return nil
}

// Typed returns the value of key in the shape the system of record stores it.
func (c *Configuration) Typed(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value := c.values[key]
	if value == nil {
		return nil
	}

	switch keyTypes[key] {
	case typeBool:
		b, _ := strconv.ParseBool(*value)
		return b
	case typeInt:
		i, _ := strconv.Atoi(*value)
		return i
	case typeList:
		return splitList(*value)
	default:
		return *value
	}
}

func (c *Configuration) Int(key string) int {
	v, _ := c.Typed(key).(int)
	return v
}

func (c *Configuration) Bool(key string) bool {
	v, _ := c.Typed(key).(bool)
	return v
}

func (c *Configuration) List(key string) []string {
	v, _ := c.Typed(key).([]string)
	return v
}

func encode(typ valueType, raw interface{}) (string, error) {
	switch typ {
	case typeBool:
		switch v := raw.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return "", errors.Wrap(err, "expected a boolean")
			}
			return strconv.FormatBool(b), nil
		}
	case typeInt:
		switch v := raw.(type) {
		case int:
			return strconv.Itoa(v), nil
		case float64:
			return strconv.Itoa(int(v)), nil
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return "", errors.Wrap(err, "expected an integer")
			}
			return strconv.Itoa(i), nil
		}
	case typeList:
		switch v := raw.(type) {
		case string:
			return strings.Join(splitList(v), ","), nil
		case []string:
			return strings.Join(v, ","), nil
		case []interface{}:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, fmt.Sprint(item))
			}
			return strings.Join(items, ","), nil
		}
	case typeString:
		return fmt.Sprint(raw), nil
	}

	return "", errors.Errorf("unsupported value %v", raw)
}

func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

func copyValue(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
