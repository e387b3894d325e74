// Package natsdriver publishes messages and makes requests over NATS, optionally through JetStream.
package natsdriver

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

const Name = "nats"

const (
	modePublish   = "publish"
	modeRequest   = "request"
	modeJetStream = "jetstream"
)

type Config struct {
	// Comma separated server URLs. Defaults to nats.DefaultURL.
	URL            string
	ClientName     string
	ConnectTimeout time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration
}

type Driver struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

func New(settings map[string]any) (ops.Driver, error) {
	config := Config{
		URL:            nats.DefaultURL,
		ClientName:     "cyclebench",
		ConnectTimeout: 5 * time.Second,
		MaxReconnects:  -1,
		ReconnectWait:  time.Second,
	}
	if err := ops.DecodeSettings(settings, &config); err != nil {
		return nil, err
	}
	conn, err := nats.Connect(config.URL,
		nats.Name(config.ClientName),
		nats.Timeout(config.ConnectTimeout),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to nats at %s", config.URL)
	}
	return NewWithConn(conn)
}

func NewWithConn(conn *nats.Conn) (*Driver, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Driver{conn: conn, js: js}, nil
}

func (d *Driver) Name() string {
	return Name
}

func (d *Driver) RegisterKinds(r *errorhandling.KindRegistry) {
	r.RegisterSentinel(errorhandling.KindSpec{Name: "nats.ErrTimeout", Code: 70, Group: errorhandling.GroupRetryable}, nats.ErrTimeout)
	r.RegisterSentinel(errorhandling.KindSpec{Name: "nats.ErrNoResponders", Code: 71, Group: errorhandling.GroupRetryable}, nats.ErrNoResponders)
	r.RegisterSentinel(errorhandling.KindSpec{Name: "nats.ErrConnectionClosed", Code: 72}, nats.ErrConnectionClosed)
	r.RegisterSentinel(errorhandling.KindSpec{Name: "nats.ErrMaxPayload", Code: 73}, nats.ErrMaxPayload)
	r.RegisterSentinel(errorhandling.KindSpec{Name: "nats.ErrBadSubject", Code: 74}, nats.ErrBadSubject)
	r.RegisterSentinel(errorhandling.KindSpec{Name: "nats.ErrNoStreamResponse", Code: 75, Group: errorhandling.GroupRetryable}, nats.ErrNoStreamResponse)
}

// NewDispenser understands these template fields:
//
//	subject   subject to publish to (required)
//	payload   message body
//	mode      publish (default), request or jetstream
//	flush     for publish, "true" waits for the server to acknowledge the connection flush
//	timeout   for request, how long to wait for a reply, default 2s
func (d *Driver) NewDispenser(template ops.OpTemplate) (ops.OpDispenser, error) {
	subject, err := template.RequiredField("subject")
	if err != nil {
		return nil, err
	}
	payload, _ := template.Field("payload")
	dispenser := &dispenser{
		driver:  d,
		name:    template.Name,
		subject: subject,
		payload: payload,
		mode:    modePublish,
		flush:   template.Fields["flush"] == "true",
		timeout: 2 * time.Second,
	}
	if mode, ok := template.Fields["mode"]; ok {
		switch mode {
		case modePublish, modeRequest, modeJetStream:
			dispenser.mode = mode
		default:
			return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
				Name:    template.Name + ".op.mode",
				Value:   mode,
				Message: "must be publish, request or jetstream",
			})
		}
	}
	if timeout, ok := template.Fields["timeout"]; ok {
		if dispenser.timeout, err = time.ParseDuration(timeout); err != nil {
			return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
				Name:    template.Name + ".op.timeout",
				Value:   timeout,
				Message: "must be a duration",
			})
		}
	}
	return dispenser, nil
}

func (d *Driver) Close() error {
	if err := d.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return errors.WithStack(err)
	}
	return nil
}

type dispenser struct {
	driver  *Driver
	name    string
	subject ops.Binding
	payload ops.Binding
	mode    string
	flush   bool
	timeout time.Duration
}

func (d *dispenser) Name() string {
	return d.name
}

func (d *dispenser) Op(cycle int64) (ops.Op, error) {
	subject := d.subject.Bind(cycle)
	data := []byte(d.payload.Bind(cycle))
	conn := d.driver.conn
	switch d.mode {
	case modeRequest:
		return ops.OpFunc(func(ctx context.Context) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			reply, err := conn.RequestWithContext(ctx, subject, data)
			if err != nil {
				return nil, err
			}
			return string(reply.Data), nil
		}), nil
	case modeJetStream:
		js := d.driver.js
		return ops.OpFunc(func(ctx context.Context) (any, error) {
			ack, err := js.Publish(subject, data, nats.Context(ctx))
			if err != nil {
				return nil, err
			}
			return ack.Sequence, nil
		}), nil
	}
	return ops.OpFunc(func(ctx context.Context) (any, error) {
		if err := conn.Publish(subject, data); err != nil {
			return nil, err
		}
		if d.flush {
			if err := conn.FlushWithContext(ctx); err != nil {
				return nil, err
			}
		}
		return len(data), nil
	}), nil
}
