// Package drivers maps driver names to the constructors of the adapters that execute ops.
package drivers

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/cyclebench/drivers/diag"
	"github.com/armadaproject/cyclebench/internal/cyclebench/drivers/httpdriver"
	"github.com/armadaproject/cyclebench/internal/cyclebench/drivers/natsdriver"
	"github.com/armadaproject/cyclebench/internal/cyclebench/drivers/postgres"
	"github.com/armadaproject/cyclebench/internal/cyclebench/drivers/pulsardriver"
	"github.com/armadaproject/cyclebench/internal/cyclebench/drivers/redisdriver"
	"github.com/armadaproject/cyclebench/internal/cyclebench/drivers/sqlitedriver"
	"github.com/armadaproject/cyclebench/internal/cyclebench/drivers/stdout"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

// Factory builds a driver from its settings, as decoded from the driver section of the config.
type Factory func(settings map[string]any) (ops.Driver, error)

// KindSource registers the error kinds of a driver without connecting to anything.
type KindSource func(r *errorhandling.KindRegistry)

type entry struct {
	factory Factory
	kinds   KindSource
}

var (
	registry     = map[string]entry{}
	registryLock sync.RWMutex
)

func init() {
	Register(diag.Name, diag.New, (&diag.Driver{}).RegisterKinds)
	Register(stdout.Name, stdout.New, (&stdout.Driver{}).RegisterKinds)
	Register(httpdriver.Name, httpdriver.New, (&httpdriver.Driver{}).RegisterKinds)
	Register(redisdriver.Name, redisdriver.New, (&redisdriver.Driver{}).RegisterKinds)
	Register(postgres.Name, postgres.New, (&postgres.Driver{}).RegisterKinds)
	Register(sqlitedriver.Name, sqlitedriver.New, (&sqlitedriver.Driver{}).RegisterKinds)
	Register(natsdriver.Name, natsdriver.New, (&natsdriver.Driver{}).RegisterKinds)
	Register(pulsardriver.Name, pulsardriver.New, (&pulsardriver.Driver{}).RegisterKinds)
}

// Register adds a driver, replacing any previously registered under the same name.
func Register(name string, factory Factory, kinds KindSource) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[name] = entry{factory: factory, kinds: kinds}
}

func lookup(name string) (entry, error) {
	registryLock.RLock()
	e, ok := registry[name]
	registryLock.RUnlock()
	if !ok {
		return entry{}, errors.WithStack(&benchmarkerrors.ErrNotFound{
			Type:    "driver",
			Value:   name,
			Message: "known drivers are " + strings.Join(Names(), ", "),
		})
	}
	return e, nil
}

// New builds the driver registered under name.
func New(name string, settings map[string]any) (ops.Driver, error) {
	e, err := lookup(name)
	if err != nil {
		return nil, err
	}
	driver, err := e.factory(settings)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating %s driver", name)
	}
	return driver, nil
}

// Kinds builds the kind table of the named driver, builtin kinds included.
func Kinds(name string) (*errorhandling.KindTable, error) {
	e, err := lookup(name)
	if err != nil {
		return nil, err
	}
	r := errorhandling.NewKindRegistry()
	e.kinds(r)
	table, err := r.Build()
	if err != nil {
		return nil, errors.WithMessagef(err, "building error kinds of %s driver", name)
	}
	return table, nil
}

// Names returns the registered driver names in sorted order.
func Names() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
