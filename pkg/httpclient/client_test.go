package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newTestClient(t *testing.T, cfg config.HTTPClientConfig) *Client {
	t.Helper()
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		client := newTestClient(t, config.HTTPClientConfig{BaseURL: "http://gateway.local"})
		if client.config.Timeout != 10*time.Second {
			t.Errorf("Timeout = %v, want 10s", client.config.Timeout)
		}
		if client.BaseURL() != "http://gateway.local" {
			t.Errorf("BaseURL() = %q", client.BaseURL())
		}
	})

	tests := []struct {
		name string
		cfg  config.HTTPClientConfig
	}{
		{"negative timeout", config.HTTPClientConfig{Timeout: -time.Second}},
		{"negative retry count", config.HTTPClientConfig{RetryCount: -1}},
		{"negative rate", config.HTTPClientConfig{RateLimitPerSecond: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.IsInvalidInput(err) {
				t.Errorf("New() error = %v, want invalid input", err)
			}
		})
	}
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sensors" || r.URL.Query().Get("include") != "configuration" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1, "name": "boiler"}})
	}))
	defer server.Close()

	client := newTestClient(t, config.HTTPClientConfig{BaseURL: server.URL, Timeout: time.Second})

	var got []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	resp, err := client.Get(context.Background(), "/sensors").
		WithQuery("include", "configuration").
		IntoJSON(&got).
		Do()
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !resp.IsSuccess() || len(got) != 1 || got[0].Name != "boiler" {
		t.Errorf("resp = %d, decoded = %+v", resp.StatusCode(), got)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusNotFound, errors.IsNotFound},
		{http.StatusConflict, errors.IsConflict},
		{http.StatusBadRequest, errors.IsInvalidInput},
		{http.StatusTooManyRequests, errors.IsUnavailable},
		{http.StatusBadGateway, errors.IsUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(t, config.HTTPClientConfig{BaseURL: server.URL, Timeout: time.Second})
			_, err := client.Get(context.Background(), "/sensors").Do()
			if !tt.check(err) {
				t.Errorf("Do() error = %v", err)
			}
		})
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := newTestClient(t, config.HTTPClientConfig{BaseURL: url, Timeout: time.Second})
	_, err := client.Get(context.Background(), "/sensors").Do()
	if !errors.IsUnavailable(err) {
		t.Errorf("Do() error = %v, want unavailable", err)
	}
}

func TestCancelledRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(t, config.HTTPClientConfig{BaseURL: server.URL, Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, "/sensors").Do()
	if !errors.IsCancelled(err) {
		t.Errorf("Do() error = %v, want cancelled", err)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(t, config.HTTPClientConfig{
		BaseURL:          server.URL,
		Timeout:          time.Second,
		RetryCount:       3,
		RetryWaitTime:    time.Millisecond,
		RetryMaxWaitTime: 5 * time.Millisecond,
	})

	if _, err := client.Get(context.Background(), "/sensors").Do(); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3", calls.Load())
	}
}

func TestRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(t, config.HTTPClientConfig{
		BaseURL:            server.URL,
		Timeout:            time.Second,
		RateLimitPerSecond: 10,
		RateLimitBurst:     1,
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.Get(context.Background(), "/ping").Do(); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("3 requests at 10/s took %v", elapsed)
	}
}

func TestPropagatesTraceContext(t *testing.T) {
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	}()

	var traceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
	}))
	defer server.Close()

	client := newTestClient(t, config.HTTPClientConfig{BaseURL: server.URL, Timeout: time.Second})
	ctx, span := otel.Tracer("test").Start(context.Background(), "poll")
	defer span.End()

	if _, err := client.Get(ctx, "/sensors").Do(); err != nil {
		t.Fatal(err)
	}
	if traceparent == "" {
		t.Error("traceparent header not sent")
	}
}
