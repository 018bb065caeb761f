// Package registry maps every OCPP action of a protocol version to its send and reply hooks.
package registry

import (
	"strings"
	"sync"
	"unicode"

	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocppj"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrUnknownAction = errors.New("unknown action")

type Direction int

const (
	// Outgoing actions are initiated by the charge point.
	Outgoing Direction = iota
	// Incoming actions are initiated by the CSMS.
	Incoming
	// Bidirectional actions may be initiated by either side.
	Bidirectional
)

// Row declares one action of a protocol version.
type Row struct {
	Message   string
	Direction Direction
	NewReply  func() ocpp.Response
}

// Sender is the protocol endpoint requests are sent through.
type Sender interface {
	SendRequest(request ocpp.Request) (ocpp.Response, error)
}

type (
	BuildOutgoingFunc func(request ocpp.Request) ocpp.Request
	SendFunc          func(sender Sender, request ocpp.Request) (ocpp.Response, error)
	ReplyFunc         func(request ocpp.Request) (ocpp.Response, error)
	AfterFunc         func(request ocpp.Request, response ocpp.Response)
)

// Action holds the hooks of one message.
type Action struct {
	Name      string
	Message   string
	Direction Direction

	BuildOutgoing BuildOutgoingFunc
	Send          SendFunc
	Reply         ReplyFunc
	After         AfterFunc
}

type Option func(a *Action)

func WithBuildOutgoing(fn BuildOutgoingFunc) Option { return func(a *Action) { a.BuildOutgoing = fn } }
func WithSend(fn SendFunc) Option                   { return func(a *Action) { a.Send = fn } }
func WithReply(fn ReplyFunc) Option                 { return func(a *Action) { a.Reply = fn } }
func WithAfter(fn AfterFunc) Option                 { return func(a *Action) { a.After = fn } }

// Registry is safe for concurrent use. Overrides are expected at session setup.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*Action
	log     *logrus.Entry
}

func New(rows []Row, logger *logrus.Entry) *Registry {
	r := &Registry{actions: make(map[string]*Action, len(rows)), log: logger}
	for _, row := range rows {
		r.actions[Canonical(row.Message)] = r.defaultAction(row)
	}

	return r
}

func (r *Registry) defaultAction(row Row) *Action {
	a := &Action{
		Name:          Canonical(row.Message),
		Message:       row.Message,
		Direction:     row.Direction,
		BuildOutgoing: func(request ocpp.Request) ocpp.Request { return request },
		After: func(request ocpp.Request, response ocpp.Response) {
			r.log.WithField("message", row.Message).Debugf("replied %+v", response)
		},
	}
	a.Send = func(sender Sender, request ocpp.Request) (ocpp.Response, error) {
		return sender.SendRequest(request)
	}
	a.Reply = func(request ocpp.Request) (ocpp.Response, error) {
		if row.NewReply == nil {
			return nil, ocpp.NewError(ocppj.NotImplemented, "no reply for "+row.Message, "")
		}
		return row.NewReply(), nil
	}

	return a
}

var renamed = map[string]string{
	"CostUpdate": "CostUpdated",
}

// Canonical returns the snake_case key of an action name.
func Canonical(name string) string {
	if to, ok := renamed[name]; ok {
		name = to
	}

	runes := []rune(name)
	var b strings.Builder
	for i, c := range runes {
		if unicode.IsUpper(c) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(c))
	}

	return b.String()
}

// Lookup returns a copy of the action registered under name, in any spelling.
func (r *Registry) Lookup(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actions[Canonical(name)]
	if !ok {
		return Action{}, errors.Wrapf(ErrUnknownAction, "%s", name)
	}

	return *a, nil
}

// Override replaces hooks of an action.
func (r *Registry) Override(name string, options ...Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actions[Canonical(name)]
	if !ok {
		return errors.Wrapf(ErrUnknownAction, "%s", name)
	}
	for _, option := range options {
		option(a)
	}

	return nil
}

// Send builds the outgoing request and sends it. Protocol errors are returned as is.
func (r *Registry) Send(sender Sender, name string, request ocpp.Request) (ocpp.Response, error) {
	a, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	return a.Send(sender, a.BuildOutgoing(request))
}

// OnIncoming logs the request and returns the reply of its action.
func (r *Registry) OnIncoming(name string, request ocpp.Request) (ocpp.Response, error) {
	a, err := r.Lookup(name)
	if err != nil {
		return nil, ocpp.NewError(ocppj.NotImplemented, err.Error(), "")
	}

	r.log.WithField("message", a.Message).Infof("received %+v", request)
	response, err := a.Reply(request)
	if err != nil {
		return nil, err
	}
	if a.After != nil {
		a.After(request, response)
	}

	return response, nil
}

// Reply runs OnIncoming and asserts the concrete response type ocpp-go handlers return.
func Reply[T ocpp.Response](r *Registry, name string, request ocpp.Request) (T, error) {
	var zero T

	response, err := r.OnIncoming(name, request)
	if err != nil {
		return zero, err
	}
	typed, ok := response.(T)
	if !ok {
		return zero, errors.Errorf("%s replied with %T", name, response)
	}

	return typed, nil
}

// Request sends through the registry and asserts the concrete response type.
func Request[T ocpp.Response](r *Registry, sender Sender, name string, request ocpp.Request) (T, error) {
	var zero T

	response, err := r.Send(sender, name, request)
	if err != nil {
		return zero, errors.Wrapf(err, "%s failed", name)
	}
	typed, ok := response.(T)
	if !ok {
		return zero, errors.Errorf("%s answered with %T", name, response)
	}

	return typed, nil
}
