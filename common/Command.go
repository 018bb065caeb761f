package common

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/pkg/errors"
)

// Command names carried in the "name" field of every envelope.
const (
	StartTransactionName   = "StartTransaction"
	StopTransactionName    = "StopTransaction"
	SetChargingProfileName = "SetChargingProfile"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidCommand = errors.New("invalid command")
)

var Validator = validator.New()

// Command is one of StartTransaction, StopTransaction or SetChargingProfile.
type Command interface {
	CommandName() string
	validate() error
}

type StartTransaction struct {
	TransactionID int `json:"transaction_id" validate:"required,gt=0"`
}

func (StartTransaction) CommandName() string { return StartTransactionName }

func (c StartTransaction) validate() error { return Validator.Struct(c) }

type StopTransaction struct {
	TransactionID int `json:"transaction_id" validate:"required,gt=0"`
}

func (StopTransaction) CommandName() string { return StopTransactionName }

func (c StopTransaction) validate() error { return Validator.Struct(c) }

// SetChargingProfile installs an OCPP 1.6 profile on a protocol connector id, 0 being the whole charge point.
type SetChargingProfile struct {
	ConnectorID int                    `json:"connector_id" validate:"gte=0"`
	Profile     *types.ChargingProfile `json:"cs_charging_profiles" validate:"-"`
}

func (SetChargingProfile) CommandName() string { return SetChargingProfileName }

func (c SetChargingProfile) validate() error {
	if err := Validator.Struct(c); err != nil {
		return err
	}
	if c.Profile == nil {
		return errors.New("cs_charging_profiles is required")
	}

	// Profiles carry OCPP specific validation tags registered on the protocol validator.
	return types.Validate.Struct(c.Profile)
}

type envelope struct {
	Name string `json:"name"`
}

// Decode parses and validates one command envelope.
func Decode(data []byte) (Command, error) {
	var head envelope
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, err.Error())
	}

	var command Command
	switch head.Name {
	case StartTransactionName:
		var c StartTransaction
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, errors.Wrap(ErrInvalidCommand, err.Error())
		}
		command = c
	case StopTransactionName:
		var c StopTransaction
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, errors.Wrap(ErrInvalidCommand, err.Error())
		}
		command = c
	case SetChargingProfileName:
		var c SetChargingProfile
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, errors.Wrap(ErrInvalidCommand, err.Error())
		}
		command = c
	default:
		return nil, errors.Wrapf(ErrUnknownCommand, "%q", head.Name)
	}

	if err := command.validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, err.Error())
	}

	return command, nil
}

// Encode renders command as an envelope with its name discriminator.
func Encode(command Command) ([]byte, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode command")
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, errors.Wrap(err, "failed to encode command")
	}
	name, _ := json.Marshal(command.CommandName())
	fields["name"] = name

	return json.Marshal(fields)
}
