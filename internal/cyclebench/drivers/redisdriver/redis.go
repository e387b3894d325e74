// Package redisdriver runs redis commands through github.com/go-redis/redis.
package redisdriver

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/common/config"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

const Name = "redis"

const (
	KindNil        = "redis.Nil"
	KindServer     = "redis.ServerError"
	KindServerBusy = "redis.ServerBusy"
	KindClient     = "redis.ClientError"
)

// Replies starting with one of these mean the server could not serve the command right now.
var busyPrefixes = map[string]bool{
	"LOADING":     true,
	"BUSY":        true,
	"TRYAGAIN":    true,
	"CLUSTERDOWN": true,
	"MASTERDOWN":  true,
}

// ServerError is an error reply from the server.
type ServerError struct {
	Command string
	Prefix  string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("redis %s: %s", e.Command, e.Message)
}

// ServerBusyError is an error reply meaning the command may succeed if tried again.
type ServerBusyError struct {
	ServerError
}

// ClientError is raised by the client library rather than the server, e.g. on pool exhaustion.
type ClientError struct {
	Command string
	Err     error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("redis %s: %s", e.Command, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

type Driver struct {
	client redis.UniversalClient
}

// New decodes settings as a config.RedisConfig, e.g. {addrs: [localhost:6379], db: 0, poolSize: 32}.
func New(settings map[string]any) (ops.Driver, error) {
	redisConfig := config.DefaultRedisConfig()
	if err := ops.DecodeSettings(settings, &redisConfig); err != nil {
		return nil, err
	}
	if err := config.Validate(redisConfig); err != nil {
		return nil, err
	}
	return NewWithClient(redis.NewUniversalClient(redisConfig.AsUniversalOptions())), nil
}

func NewWithClient(client redis.UniversalClient) *Driver {
	return &Driver{client: client}
}

func (d *Driver) Name() string {
	return Name
}

func (d *Driver) RegisterKinds(r *errorhandling.KindRegistry) {
	r.RegisterSentinel(errorhandling.KindSpec{Name: KindNil, Code: 40, Group: errorhandling.GroupUnverified}, redis.Nil)
	errorhandling.Register[*ServerError](r, errorhandling.KindSpec{Name: KindServer, Code: 41})
	errorhandling.Register[*ServerBusyError](r, errorhandling.KindSpec{Name: KindServerBusy, Code: 42, Group: errorhandling.GroupRetryable})
	errorhandling.Register[*ClientError](r, errorhandling.KindSpec{Name: KindClient, Code: 43})
}

// NewDispenser uses the "command" field, split on whitespace, e.g. "SET key:{cycle} {cycle}".
func (d *Driver) NewDispenser(template ops.OpTemplate) (ops.OpDispenser, error) {
	if _, err := template.RequiredField("command"); err != nil {
		return nil, err
	}
	words := strings.Fields(template.Fields["command"])
	if len(words) == 0 {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    template.Name + ".op.command",
			Value:   "",
			Message: "must not be empty",
		})
	}
	args := make([]ops.Binding, len(words))
	for i, word := range words {
		args[i] = ops.NewBinding(word)
	}
	return &dispenser{client: d.client, name: template.Name, verb: strings.ToUpper(words[0]), args: args}, nil
}

func (d *Driver) Close() error {
	return errors.WithStack(d.client.Close())
}

type dispenser struct {
	client redis.UniversalClient
	name   string
	verb   string
	args   []ops.Binding
}

func (d *dispenser) Name() string {
	return d.name
}

func (d *dispenser) Op(cycle int64) (ops.Op, error) {
	args := make([]any, len(d.args))
	for i, arg := range d.args {
		args[i] = arg.Bind(cycle)
	}
	return ops.OpFunc(func(ctx context.Context) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cmd := redis.NewCmd(args...)
		_ = d.client.Process(cmd)
		result, err := cmd.Result()
		if err != nil {
			return nil, classify(d.verb, err)
		}
		return result, nil
	}), nil
}

// classify maps library errors to the driver's error types. redis.Nil and network errors are returned as is.
func classify(verb string, err error) error {
	if err == redis.Nil {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return err
	}
	message := err.Error()
	if strings.HasPrefix(message, "redis: ") {
		return &ClientError{Command: verb, Err: err}
	}
	prefix := message
	if space := strings.IndexByte(message, ' '); space > 0 {
		prefix = message[:space]
	}
	serverErr := ServerError{Command: verb, Prefix: prefix, Message: message}
	if busyPrefixes[prefix] {
		return &ServerBusyError{ServerError: serverErr}
	}
	return &serverErr
}
