// twinctl publishes commands to running charge point sessions.
//
//	twinctl -id 12 start 345
//	twinctl -id 12 stop 345
//	twinctl -id 12 -connector 1 profile profile.json
//	twinctl -id 12 connect|disconnect
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"charge_point_twin/common"
	"charge_point_twin/config"
	notifier "charge_point_twin/notifier/nats"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	chargePointID := flag.Int("id", 0, "charge point record id")
	connectorID := flag.Int("connector", 0, "protocol connector id of a charging profile")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: twinctl -id <charge point> start|stop <transaction> | profile <file> | connect | disconnect\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if *chargePointID <= 0 || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("couldn't load configuration: %v", err)
	}

	conn, err := notifier.Connect(cfg.NatsURL, cfg.NatsUser, cfg.NatsPassword, "twinctl")
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	publisher := notifier.NewPublisher(conn)
	logger := log.WithFields(log.Fields{"client": *chargePointID, "request": uuid.NewString()})

	if err := run(publisher, *chargePointID, *connectorID, flag.Args()); err != nil {
		logger.Fatal(err)
	}
	if err := conn.Flush(); err != nil {
		logger.Fatalf("couldn't flush: %v", err)
	}
	logger.WithField("command", flag.Arg(0)).Info("published")
}

func run(publisher *notifier.Publisher, chargePointID, connectorID int, args []string) error {
	switch args[0] {
	case "connect":
		return publisher.ConnectChargePoint(chargePointID)
	case "disconnect":
		return publisher.DisconnectChargePoint(chargePointID)
	}

	if len(args) < 2 {
		return errors.Errorf("%s needs an argument", args[0])
	}
	command, err := parse(args[0], args[1], connectorID)
	if err != nil {
		return err
	}

	return publisher.Publish(chargePointID, command)
}

func parse(name, argument string, connectorID int) (common.Command, error) {
	switch name {
	case "start", "stop":
		id, err := strconv.Atoi(argument)
		if err != nil || id <= 0 {
			return nil, errors.Errorf("invalid transaction id %q", argument)
		}
		if name == "start" {
			return common.StartTransaction{TransactionID: id}, nil
		}
		return common.StopTransaction{TransactionID: id}, nil
	case "profile":
		data, err := os.ReadFile(argument)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read charging profile")
		}
		var profile types.ChargingProfile
		if err := json.Unmarshal(data, &profile); err != nil {
			return nil, errors.Wrap(err, "failed to parse charging profile")
		}
		return common.SetChargingProfile{ConnectorID: connectorID, Profile: &profile}, nil
	default:
		return nil, errors.Wrapf(common.ErrUnknownCommand, "%q", name)
	}
}
