// Package httpdriver sends HTTP requests.
package httpdriver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

const Name = "http"

const (
	KindClientStatus = "http.ClientStatus"
	KindServerStatus = "http.ServerStatus"
)

const headerPrefix = "header."

// Response bodies are read up to this size.
const maxBodySize = 1 << 20

type Config struct {
	// Prefixed to template urls that do not start with a scheme.
	BaseURL             string
	Timeout             time.Duration
	MaxIdleConnsPerHost int
}

// ClientStatusError is a 4xx response other than 429.
type ClientStatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *ClientStatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, e.Body)
}

// ServerStatusError is a 5xx or 429 response.
type ServerStatusError struct {
	ClientStatusError
}

type Driver struct {
	client  *http.Client
	baseURL string
}

func New(settings map[string]any) (ops.Driver, error) {
	config := Config{Timeout: 30 * time.Second, MaxIdleConnsPerHost: 64}
	if err := ops.DecodeSettings(settings, &config); err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = config.MaxIdleConnsPerHost
	return NewWithClient(&http.Client{Transport: transport, Timeout: config.Timeout}, config.BaseURL), nil
}

func NewWithClient(client *http.Client, baseURL string) *Driver {
	return &Driver{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (d *Driver) Name() string {
	return Name
}

func (d *Driver) RegisterKinds(r *errorhandling.KindRegistry) {
	errorhandling.Register[*ClientStatusError](r, errorhandling.KindSpec{Name: KindClientStatus, Code: 90})
	errorhandling.Register[*ServerStatusError](r, errorhandling.KindSpec{Name: KindServerStatus, Code: 91, Group: errorhandling.GroupRetryable})
}

// NewDispenser understands these template fields:
//
//	url         absolute, or relative to the base url (required)
//	method      default GET
//	body        request body
//	header.<n>  value of header n
func (d *Driver) NewDispenser(template ops.OpTemplate) (ops.OpDispenser, error) {
	if _, err := template.RequiredField("url"); err != nil {
		return nil, err
	}
	rawURL := template.Fields["url"]
	if !strings.Contains(rawURL, "://") {
		if d.baseURL == "" {
			return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
				Name:    template.Name + ".op.url",
				Value:   rawURL,
				Message: "relative url needs a baseURL in the driver settings",
			})
		}
		rawURL = d.baseURL + "/" + strings.TrimPrefix(rawURL, "/")
	}
	method := strings.ToUpper(template.Fields["method"])
	if method == "" {
		method = http.MethodGet
	}
	dispenser := &dispenser{
		client: d.client,
		name:   template.Name,
		method: method,
		url:    ops.NewBinding(rawURL),
	}
	dispenser.body, dispenser.hasBody = template.Field("body")
	for _, field := range template.FieldNames() {
		if strings.HasPrefix(field, headerPrefix) {
			value, _ := template.Field(field)
			dispenser.headers = append(dispenser.headers, header{name: strings.TrimPrefix(field, headerPrefix), value: value})
		}
	}
	sort.Slice(dispenser.headers, func(i, j int) bool { return dispenser.headers[i].name < dispenser.headers[j].name })
	return dispenser, nil
}

func (d *Driver) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

type header struct {
	name  string
	value ops.Binding
}

type dispenser struct {
	client  *http.Client
	name    string
	method  string
	url     ops.Binding
	body    ops.Binding
	hasBody bool
	headers []header
}

func (d *dispenser) Name() string {
	return d.name
}

func (d *dispenser) Op(cycle int64) (ops.Op, error) {
	url := d.url.Bind(cycle)
	body := ""
	if d.hasBody {
		body = d.body.Bind(cycle)
	}
	headers := make(http.Header, len(d.headers))
	for _, h := range d.headers {
		headers.Set(h.name, h.value.Bind(cycle))
	}
	return ops.OpFunc(func(ctx context.Context) (any, error) {
		var reader io.Reader
		if d.hasBody {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, d.method, url, reader)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		req.Header = headers.Clone()
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		content, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, err
		}
		if err := statusError(d.method, url, resp.StatusCode, string(content)); err != nil {
			return nil, err
		}
		return string(content), nil
	}), nil
}

func statusError(method, url string, status int, body string) error {
	if status < 400 {
		return nil
	}
	err := ClientStatusError{Method: method, URL: url, Status: status, Body: strings.TrimSpace(body)}
	if status >= 500 || status == http.StatusTooManyRequests {
		return &ServerStatusError{ClientStatusError: err}
	}
	return &err
}
