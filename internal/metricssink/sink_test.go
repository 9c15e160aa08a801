package metricssink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/turphai/boomwatch/internal/adapter"
	"github.com/turphai/boomwatch/internal/domain"
)

type testAdapter struct{}

func (testAdapter) Identity() (domain.DataSource, string, domain.Unit) {
	return domain.SourceBDCDiscount, "daily_discount", domain.UnitRatio
}
func (testAdapter) Fetch(ctx context.Context) (adapter.RawReading, error) { return adapter.RawReading{}, nil }
func (testAdapter) Schema() adapter.Schema                                 { return adapter.Schema{} }
func (testAdapter) SecondarySources(ctx context.Context) []adapter.RawReading { return nil }
func (testAdapter) Fallback(ctx context.Context) (adapter.RawReading, bool)   { return adapter.RawReading{}, false }
func (testAdapter) PreferredCacheTTL() time.Duration                          { return time.Hour }
func (testAdapter) SourceFlag() string                                       { return "test" }
func (testAdapter) FallbackSourceFlag() string                               { return "" }

func TestReportPostsScraperResultSummary(t *testing.T) {
	var received payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := New(resty.New(), srv.URL, zap.NewNop().Sugar())
	result := domain.ScraperResult{
		Success:           true,
		ExecutionDuration: 2 * time.Second,
		RetryCount:        1,
		UsedFallback:      true,
		MetricPoint:       &domain.MetricPoint{Confidence: 0.8},
	}
	sink.Report(context.Background(), testAdapter{}, result)

	time.Sleep(50 * time.Millisecond)
	if received.Scraper != "bdc_discount/daily_discount" {
		t.Fatalf("unexpected scraper label: %s", received.Scraper)
	}
	if !received.Success || !received.UsedFallback || received.RetryCount != 1 {
		t.Fatalf("unexpected payload: %+v", received)
	}
	if received.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", received.Confidence)
	}
}

func TestReportSkipsSkippedResults(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	sink := New(resty.New(), srv.URL, zap.NewNop().Sugar())
	sink.Report(context.Background(), testAdapter{}, domain.ScraperResult{Skipped: true})

	time.Sleep(20 * time.Millisecond)
	if called {
		t.Fatal("expected no POST for a skipped result")
	}
}
