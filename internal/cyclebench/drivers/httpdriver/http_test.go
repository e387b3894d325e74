package httpdriver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/echo/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write([]byte(r.Method + " " + r.URL.Path + " " + r.Header.Get("X-Cycle") + " " + string(body)))
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func apply(t *testing.T, driver *Driver, fields map[string]string, cycle int64) (any, error) {
	t.Helper()
	dispenser, err := driver.NewDispenser(ops.OpTemplate{Name: "op", Fields: fields})
	require.NoError(t, err)
	op, err := dispenser.Op(cycle)
	require.NoError(t, err)
	return op.Apply(context.Background())
}

func TestHttp_BindsUrlHeadersAndBody(t *testing.T) {
	server := testServer(t)
	driver := NewWithClient(server.Client(), server.URL+"/")

	result, err := apply(t, driver, map[string]string{
		"method":         "post",
		"url":            "/echo/{cycle}",
		"body":           "payload-{cycle}",
		"header.X-Cycle": "{cycle}",
	}, 42)
	require.NoError(t, err)
	assert.Equal(t, "POST /echo/42 42 payload-42", result)
}

func TestHttp_StatusErrorsClassify(t *testing.T) {
	server := testServer(t)
	driver := NewWithClient(server.Client(), server.URL)
	registry := errorhandling.NewKindRegistry()
	driver.RegisterKinds(registry)
	table, err := registry.Build()
	require.NoError(t, err)
	classifier, err := errorhandling.NewClassifier(table)
	require.NoError(t, err)

	_, err = apply(t, driver, map[string]string{"url": "busy"}, 1)
	assert.IsType(t, &ServerStatusError{}, err)
	assert.Equal(t, errorhandling.GroupRetryable, classifier.Classify(err))

	_, err = apply(t, driver, map[string]string{"url": server.URL + "/missing"}, 1)
	var clientErr *ClientStatusError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, http.StatusNotFound, clientErr.Status)
	assert.Equal(t, errorhandling.CatchAllGroup, classifier.Classify(err))
}

func TestHttp_ConnectionRefusedIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	driver := NewWithClient(http.DefaultClient, "")
	registry := errorhandling.NewKindRegistry()
	driver.RegisterKinds(registry)
	table, err := registry.Build()
	require.NoError(t, err)
	classifier, err := errorhandling.NewClassifier(table)
	require.NoError(t, err)

	_, err = apply(t, driver, map[string]string{"url": url + "/x"}, 1)
	require.Error(t, err)
	assert.Equal(t, errorhandling.GroupRetryable, classifier.Classify(err))
}

func TestHttp_RelativeUrlNeedsBase(t *testing.T) {
	driver := NewWithClient(http.DefaultClient, "")
	_, err := driver.NewDispenser(ops.OpTemplate{Name: "op", Fields: map[string]string{"url": "/x"}})
	assert.Error(t, err)
}
