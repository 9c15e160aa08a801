package bankprovision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/turphai/boomwatch/internal/appctx"
	"github.com/turphai/boomwatch/internal/secretstore"
)

const sampleFiling = `<html><body>
<table><tr><td data-line="nonbank-provision">$12,345,678</td></tr></table>
</body></html>`

const sampleFilingNegative = `<html><body>
<table><tr><td data-line="nonbank-provision">(1,234,567)</td></tr></table>
</body></html>`

func testContext(t *testing.T) *appctx.Context {
	t.Helper()
	return appctx.New(secretstore.New(secretstore.EnvBackend{}), zap.NewNop().Sugar(), 4)
}

func TestFetchParsesPositiveProvision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFiling))
	}))
	defer srv.Close()

	a := New(testContext(t), srv.URL, "", "")
	reading, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if reading.Value != 12345678 {
		t.Fatalf("expected provision 12345678, got %v", reading.Value)
	}
}

func TestFetchParsesParenthesizedNegativeProvision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFilingNegative))
	}))
	defer srv.Close()

	a := New(testContext(t), srv.URL, "", "")
	reading, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if reading.Value != -1234567 {
		t.Fatalf("expected provision -1234567, got %v", reading.Value)
	}
}

func TestFetchTransportErrorOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := New(testContext(t), srv.URL, "", "")
	if _, err := a.Fetch(context.Background()); err == nil {
		t.Fatal("expected a transport error for a 502 response")
	}
}

func TestFallbackUsedWhenPrimaryFails(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFiling))
	}))
	defer fallback.Close()

	a := New(testContext(t), primary.URL, fallback.URL, "")
	reading, ok := a.Fallback(context.Background())
	if !ok {
		t.Fatal("expected fallback to succeed")
	}
	if reading.Value != 12345678 {
		t.Fatalf("expected provision 12345678 from fallback filing, got %v", reading.Value)
	}
}
