// Package stdout is a driver that writes each bound statement as a line of text instead of sending it to a
// backend.
package stdout

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

const Name = "stdout"

type Config struct {
	// "stdout", "stderr" or a file path. Defaults to stdout.
	Target string
	// Append to an existing file rather than truncating it.
	Append bool
}

type Driver struct {
	mu     sync.Mutex
	out    *bufio.Writer
	closer io.Closer
}

func New(settings map[string]any) (ops.Driver, error) {
	var config Config
	if err := ops.DecodeSettings(settings, &config); err != nil {
		return nil, err
	}
	switch config.Target {
	case "", "stdout":
		return NewWithWriter(os.Stdout), nil
	case "stderr":
		return NewWithWriter(os.Stderr), nil
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if config.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(config.Target, flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening stdout driver target %s", config.Target)
	}
	driver := NewWithWriter(file)
	driver.closer = file
	return driver, nil
}

func NewWithWriter(w io.Writer) *Driver {
	return &Driver{out: bufio.NewWriter(w)}
}

func (d *Driver) Name() string {
	return Name
}

func (d *Driver) RegisterKinds(*errorhandling.KindRegistry) {}

// NewDispenser uses the "stmt" field of the template. Each op writes the bound statement followed by a newline
// and returns it.
func (d *Driver) NewDispenser(template ops.OpTemplate) (ops.OpDispenser, error) {
	stmt, err := template.RequiredField("stmt")
	if err != nil {
		return nil, err
	}
	return &dispenser{driver: d, name: template.Name, stmt: stmt}, nil
}

func (d *Driver) write(line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.out.WriteString(line); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(d.out.WriteByte('\n'))
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.out.Flush()
	if d.closer != nil {
		if closeErr := d.closer.Close(); err == nil {
			err = closeErr
		}
	}
	return errors.WithStack(err)
}

type dispenser struct {
	driver *Driver
	name   string
	stmt   ops.Binding
}

func (d *dispenser) Name() string {
	return d.name
}

func (d *dispenser) Op(cycle int64) (ops.Op, error) {
	line := d.stmt.Bind(cycle)
	return ops.OpFunc(func(context.Context) (any, error) {
		return line, d.driver.write(line)
	}), nil
}
