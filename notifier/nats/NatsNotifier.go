package notifier

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"charge_point_twin/common"
)

const (
	ConnectSubject    = "connect-charge-point"
	DisconnectSubject = "disconnect-charge-point"
)

// Subject returns the command subject of one charge point.
func Subject(chargePointID int) string {
	return fmt.Sprintf("actions-%d", chargePointID)
}

// Connect opens a NATS connection that keeps reconnecting in the background.
func Connect(url, user, password, name string) (*nats.Conn, error) {
	options := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	}
	if user != "" {
		options = append(options, nats.UserInfo(user, password))
	}

	nc, err := nats.Connect(url, options...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to nats at %s", url)
	}

	return nc, nil
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// Publisher sends command envelopes to charge point sessions.
type Publisher struct {
	conn publisher
}

func NewPublisher(conn publisher) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) Publish(chargePointID int, command common.Command) error {
	data, err := common.Encode(command)
	if err != nil {
		return err
	}

	return errors.Wrapf(p.conn.Publish(Subject(chargePointID), data), "failed to publish %s", command.CommandName())
}

// ConnectChargePoint asks the fleet worker to start a session.
func (p *Publisher) ConnectChargePoint(chargePointID int) error {
	return p.fleet(ConnectSubject, chargePointID)
}

// DisconnectChargePoint asks the fleet worker to end a session.
func (p *Publisher) DisconnectChargePoint(chargePointID int) error {
	return p.fleet(DisconnectSubject, chargePointID)
}

func (p *Publisher) fleet(subject string, chargePointID int) error {
	data, err := json.Marshal(FleetRequest{ChargePointID: chargePointID})
	if err != nil {
		return errors.Wrap(err, "failed to encode fleet request")
	}

	return errors.Wrapf(p.conn.Publish(subject, data), "failed to publish on %s", subject)
}

type FleetRequest struct {
	ChargePointID int `json:"charge_point_id" validate:"required,gt=0"`
}

// FleetHandler runs and cancels sessions on request.
type FleetHandler interface {
	Connect(chargePointID int)
	Disconnect(chargePointID int)
}

type subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// SubscribeFleet routes connect and disconnect requests to handler.
func SubscribeFleet(conn subscriber, handler FleetHandler) ([]*nats.Subscription, error) {
	routes := map[string]func(int){
		ConnectSubject:    handler.Connect,
		DisconnectSubject: handler.Disconnect,
	}

	var subscriptions []*nats.Subscription
	for subject, fn := range routes {
		fn := fn
		sub, err := conn.Subscribe(subject, func(m *nats.Msg) {
			status := "ok"
			if err := HandleFleetRequest(m.Data, fn); err != nil {
				log.WithField("subject", m.Subject).WithError(err).Warn("dropping fleet request")
				status = "invalid"
			}
			if m.Reply != "" {
				_ = m.Respond([]byte(fmt.Sprintf(`{"status":%q}`, status)))
			}
		})
		if err != nil {
			for _, s := range subscriptions {
				_ = s.Unsubscribe()
			}
			return nil, errors.Wrapf(err, "failed to subscribe to %s", subject)
		}
		subscriptions = append(subscriptions, sub)
	}

	return subscriptions, nil
}

// HandleFleetRequest decodes a fleet request and calls fn with its charge point id.
func HandleFleetRequest(data []byte, fn func(int)) error {
	var request FleetRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return errors.Wrap(common.ErrInvalidCommand, err.Error())
	}
	if err := common.Validator.Struct(&request); err != nil {
		return errors.Wrap(common.ErrInvalidCommand, err.Error())
	}

	fn(request.ChargePointID)

	return nil
}

type syncSubscriber interface {
	SubscribeSync(subject string) (*nats.Subscription, error)
}

// SubscribeCommands opens the subscription a Consumer polls for one charge point.
func SubscribeCommands(conn syncSubscriber, chargePointID int) (*nats.Subscription, error) {
	sub, err := conn.SubscribeSync(Subject(chargePointID))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to subscribe to %s", Subject(chargePointID))
	}

	return sub, nil
}
