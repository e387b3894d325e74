// Package pulsardriver sends messages to Apache Pulsar topics.
package pulsardriver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/common/config"
	"github.com/armadaproject/cyclebench/internal/common/pulsarutils"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

const Name = "pulsar"

const (
	KindError     = "pulsar.Error"
	KindRetryable = "pulsar.Retryable"
)

// Producer results that are expected to clear if the send is tried again.
var retryableResults = map[pulsar.Result]bool{
	pulsar.TimeoutError:        true,
	pulsar.ProducerQueueIsFull: true,
	pulsar.ConnectError:        true,
	pulsar.NotConnectedError:   true,
	pulsar.ServiceUnitNotReady: true,
}

type Config struct {
	pulsarutils.PulsarConfig `mapstructure:",squash"`
	SendTimeout              time.Duration
	// Producer name prefix. Each topic gets its own producer.
	ProducerName string
}

// RetryableError wraps a pulsar error whose result is in retryableResults.
type RetryableError struct {
	Result pulsar.Result
	Err    *pulsar.Error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable pulsar error (result %d): %s", e.Result, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

type Driver struct {
	client pulsar.Client
	config Config

	mu        sync.Mutex
	producers map[string]pulsar.Producer
}

func New(settings map[string]any) (ops.Driver, error) {
	driverConfig := Config{
		PulsarConfig: pulsarutils.PulsarConfig{URL: "pulsar://localhost:6650"},
		SendTimeout:  30 * time.Second,
		ProducerName: "cyclebench",
	}
	if err := ops.DecodeSettings(settings, &driverConfig, config.DefaultHooks()...); err != nil {
		return nil, err
	}
	client, err := pulsarutils.NewPulsarClient(&driverConfig.PulsarConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "creating pulsar client for %s", driverConfig.URL)
	}
	return NewWithClient(client, driverConfig), nil
}

func NewWithClient(client pulsar.Client, config Config) *Driver {
	return &Driver{
		client:    client,
		config:    config,
		producers: make(map[string]pulsar.Producer),
	}
}

func (d *Driver) Name() string {
	return Name
}

func (d *Driver) RegisterKinds(r *errorhandling.KindRegistry) {
	errorhandling.Register[*pulsar.Error](r, errorhandling.KindSpec{Name: KindError, Code: 80})
	errorhandling.Register[*RetryableError](r, errorhandling.KindSpec{Name: KindRetryable, Code: 81, Group: errorhandling.GroupRetryable})
}

// NewDispenser understands these template fields:
//
//	topic    topic to send to (required, must not depend on the cycle)
//	payload  message body
//	key      message key
func (d *Driver) NewDispenser(template ops.OpTemplate) (ops.OpDispenser, error) {
	topic, err := template.RequiredField("topic")
	if err != nil {
		return nil, err
	}
	if !topic.Static() {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    template.Name + ".op.topic",
			Value:   template.Fields["topic"],
			Message: "topic must not depend on the cycle",
		})
	}
	payload, _ := template.Field("payload")
	key, hasKey := template.Field("key")
	producer, err := d.producer(template.Fields["topic"])
	if err != nil {
		return nil, err
	}
	return &dispenser{
		name:     template.Name,
		producer: producer,
		payload:  payload,
		key:      key,
		hasKey:   hasKey,
	}, nil
}

func (d *Driver) producer(topic string) (pulsar.Producer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if producer, ok := d.producers[topic]; ok {
		return producer, nil
	}
	name := fmt.Sprintf("%s-%d", d.config.ProducerName, len(d.producers))
	producer, err := d.client.CreateProducer(pulsar.ProducerOptions{
		Name:             name,
		Topic:            topic,
		SendTimeout:      d.config.SendTimeout,
		CompressionType:  d.config.CompressionType,
		CompressionLevel: d.config.CompressionLevel,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error creating pulsar producer %s", name)
	}
	d.producers[topic] = producer
	return producer, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result *multierror.Error
	for _, producer := range d.producers {
		if err := producer.Flush(); err != nil {
			result = multierror.Append(result, errors.WithStack(err))
		}
		producer.Close()
	}
	d.producers = make(map[string]pulsar.Producer)
	d.client.Close()
	return result.ErrorOrNil()
}

type dispenser struct {
	name     string
	producer pulsar.Producer
	payload  ops.Binding
	key      ops.Binding
	hasKey   bool
}

func (d *dispenser) Name() string {
	return d.name
}

func (d *dispenser) Op(cycle int64) (ops.Op, error) {
	msg := &pulsar.ProducerMessage{Payload: []byte(d.payload.Bind(cycle))}
	if d.hasKey {
		msg.Key = d.key.Bind(cycle)
	}
	return ops.OpFunc(func(ctx context.Context) (any, error) {
		id, err := d.producer.Send(ctx, msg)
		if err != nil {
			return nil, classify(err)
		}
		return fmt.Sprintf("%x", id.Serialize()), nil
	}), nil
}

func classify(err error) error {
	var pulsarErr *pulsar.Error
	if errors.As(err, &pulsarErr) && retryableResults[pulsarErr.Result()] {
		return &RetryableError{Result: pulsarErr.Result(), Err: pulsarErr}
	}
	return err
}
