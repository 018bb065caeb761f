package notifier

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"charge_point_twin/backoff"
	"charge_point_twin/common"
)

// Subscription is the part of *nats.Subscription the consumer needs.
type Subscription interface {
	NextMsgWithContext(ctx context.Context) (*nats.Msg, error)
}

// Queue receives decoded commands in arrival order.
type Queue interface {
	Enqueue(ctx context.Context, command common.Command) error
}

// Consumer polls the command subject of one charge point and feeds the queue.
type Consumer struct {
	subscription Subscription
	queue        Queue
	pollTimeout  time.Duration
	backoff      *backoff.Steps
	log          *logrus.Entry
}

func NewConsumer(subscription Subscription, queue Queue, pollTimeout time.Duration, logger *logrus.Entry) *Consumer {
	return &Consumer{
		subscription: subscription,
		queue:        queue,
		pollTimeout:  pollTimeout,
		backoff:      backoff.NewSteps(time.Second, 2*time.Second, 3*time.Second),
		log:          logger,
	}
}

// Run polls until ctx ends. Malformed and unknown envelopes are dropped.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
		msg, err := c.subscription.NextMsgWithContext(pollCtx)
		cancel()

		switch {
		case err == nil:
			c.backoff.Reset()
			c.handle(ctx, msg)
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		default:
			c.log.WithError(err).Warn("command subscription failed, backing off")
			if err := c.backoff.Wait(ctx); err != nil {
				return nil
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *nats.Msg) {
	command, err := common.Decode(msg.Data)
	if err != nil {
		c.log.WithError(err).WithField("payload", string(msg.Data)).Warn("dropping command")
		return
	}

	c.log.WithField("command", command.CommandName()).Debug("command received")
	if err := c.queue.Enqueue(ctx, command); err != nil {
		c.log.WithError(err).WithField("command", command.CommandName()).Warn("command not queued")
	}
}
