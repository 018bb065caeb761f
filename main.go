package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/lorenzodonini/ocpp-go/ocppj"
	"github.com/lorenzodonini/ocpp-go/ws"
	"github.com/sirupsen/logrus"

	"charge_point_twin/backend"
	"charge_point_twin/config"
	notifier "charge_point_twin/notifier/nats"
	"charge_point_twin/supervisor"
)

var log *logrus.Logger

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	chargePointID := flag.Int("id", 0, "run a single charge point session instead of the fleet listener")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("couldn't load configuration: %v", err)
	}
	if *chargePointID > 0 {
		cfg.ChargePointID = *chargePointID
	}

	log.SetLevel(cfg.Level())
	logrus.SetLevel(cfg.Level())
	// Set LOG_LEVEL=debug to retrieve verbose logs from the ocppj and websocket layers
	ocppj.SetLogger(log)
	ws.SetLogger(log)

	conn, err := notifier.Connect(cfg.NatsURL, cfg.NatsUser, cfg.NatsPassword, "charge-point-twin")
	if err != nil {
		log.Fatalf("couldn't connect to NATS: %v", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := supervisor.New(backend.NewClient(cfg.BackendURL, cfg.RequestTimeout), supervisor.NatsCommands(conn), supervisor.Options{
		StepDelay:      cfg.StepDelay,
		MeterTick:      cfg.MeterTick,
		PollTimeout:    cfg.PollTimeout,
		RequestTimeout: cfg.RequestTimeout,
		QueueSize:      cfg.QueueSize,
	})

	if cfg.ChargePointID > 0 {
		log.WithField("client", cfg.ChargePointID).Info("starting charge point session")
		if err := sessions.Run(ctx, cfg.ChargePointID); err != nil && ctx.Err() == nil {
			log.WithField("client", cfg.ChargePointID).Errorf("session ended: %v", err)
			os.Exit(1)
		}
		log.Info("stopped charge point twin")
		return
	}

	fleet := supervisor.NewFleet(ctx, sessions)
	subscriptions, err := notifier.SubscribeFleet(conn, fleet)
	if err != nil {
		log.Fatalf("couldn't subscribe to fleet requests: %v", err)
	}
	log.Info("waiting for fleet requests")

	<-ctx.Done()
	for _, sub := range subscriptions {
		_ = sub.Unsubscribe()
	}
	fleet.Wait()

	log.Info("stopped charge point twin")
}

func init() {
	log = logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
