package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	envVarBackendURL    = "BACKEND_PRIVATE_URL"
	envVarNatsURL       = "NATS_URL"
	envVarNatsUser      = "NATS_USER"
	envVarNatsPassword  = "NATS_PASSWORD"
	envVarChargePointID = "CHARGE_POINT_ID"
	envVarLogLevel      = "LOG_LEVEL"
	envVarStepDelay     = "STEP_DELAY"
	envVarMeterTick     = "METER_TICK"
)

const (
	DefaultBackendURL     = "http://localhost:8001"
	DefaultNatsURL        = "nats://127.0.0.1:4222"
	DefaultLogLevel       = "info"
	DefaultStepDelay      = 2 * time.Second
	DefaultMeterTick      = time.Second
	DefaultPollTimeout    = time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultQueueSize      = 64
)

type Config struct {
	BackendURL     string        `yaml:"backend_url" validate:"required,url"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`

	NatsURL      string        `yaml:"nats_url" validate:"required"`
	NatsUser     string        `yaml:"nats_user"`
	NatsPassword string        `yaml:"nats_password"`
	PollTimeout  time.Duration `yaml:"poll_timeout" validate:"gt=0"`

	// ChargePointID selects single session mode. Zero runs the fleet listener.
	ChargePointID int `yaml:"charge_point_id" validate:"gte=0"`

	LogLevel  string        `yaml:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
	StepDelay time.Duration `yaml:"step_delay" validate:"gte=0"`
	MeterTick time.Duration `yaml:"meter_tick" validate:"gt=0"`
	QueueSize int           `yaml:"queue_size" validate:"gt=0"`
}

func Default() Config {
	return Config{
		BackendURL:     DefaultBackendURL,
		RequestTimeout: DefaultRequestTimeout,
		NatsURL:        DefaultNatsURL,
		PollTimeout:    DefaultPollTimeout,
		LogLevel:       DefaultLogLevel,
		StepDelay:      DefaultStepDelay,
		MeterTick:      DefaultMeterTick,
		QueueSize:      DefaultQueueSize,
	}
}

// Load reads the YAML file at path, applies environment overrides and validates the result.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			logrus.WithField("path", path).Debug("no configuration file, using defaults")
		case err != nil:
			return Config{}, errors.Wrapf(err, "failed to read configuration file %s", path)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrapf(err, "failed to parse configuration file %s", path)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(envVarBackendURL); ok {
		c.BackendURL = v
	}
	if v, ok := lookup(envVarNatsURL); ok {
		c.NatsURL = v
	}
	if v, ok := lookup(envVarNatsUser); ok {
		c.NatsUser = v
	}
	if v, ok := lookup(envVarNatsPassword); ok {
		c.NatsPassword = v
	}
	if v, ok := lookup(envVarLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(envVarChargePointID); ok {
		id, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", envVarChargePointID)
		}
		c.ChargePointID = id
	}
	if v, ok := lookup(envVarStepDelay); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", envVarStepDelay)
		}
		c.StepDelay = d
	}
	if v, ok := lookup(envVarMeterTick); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", envVarMeterTick)
		}
		c.MeterTick = d
	}

	return nil
}

// Level returns the parsed log level, falling back to info.
func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}

	return level
}
