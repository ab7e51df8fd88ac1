package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofhir/orchestra/pkg/logger"
)

func newQuietClient(opts ...Option) *Client {
	opts = append([]Option{WithLogger(logger.New(io.Discard, logger.LevelNone))}, opts...)
	return New(opts...)
}

func TestClient_FetchText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s; want GET", r.Method)
		}
		_, _ = w.Write([]byte(`{"resourceType":"StructureDefinition"}`))
	}))
	defer server.Close()

	c := newQuietClient()
	text := c.FetchText(context.Background(), server.URL)
	if text != `{"resourceType":"StructureDefinition"}` {
		t.Errorf("FetchText() = %q; want the served body", text)
	}

	stats := c.Stats()
	if stats.Fetches != 1 || stats.Failures != 0 {
		t.Errorf("Stats() = %+v; want 1 fetch, 0 failures", stats)
	}
}

func TestClient_FetchTextNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	c := newQuietClient()
	if text := c.FetchText(context.Background(), server.URL); text != "" {
		t.Errorf("FetchText() = %q; want empty text on non-200", text)
	}

	if stats := c.Stats(); stats.Failures != 1 {
		t.Errorf("Failures = %d; want 1", stats.Failures)
	}
}

func TestClient_FetchTextTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	c := newQuietClient(WithTimeout(2 * time.Second))
	if text := c.FetchText(context.Background(), url); text != "" {
		t.Errorf("FetchText() = %q; want empty text on transport failure", text)
	}
}

func TestClient_FetchTextEmptyURL(t *testing.T) {
	c := newQuietClient()
	if text := c.FetchText(context.Background(), ""); text != "" {
		t.Errorf("FetchText(\"\") = %q; want empty text", text)
	}
}

func TestClient_FetchTextContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newQuietClient()
	if text := c.FetchText(ctx, server.URL); text != "" {
		t.Errorf("FetchText() = %q; want empty text when context is canceled", text)
	}
}
