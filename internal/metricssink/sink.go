// Package metricssink ships a best-effort HTTP POST per completed
// ScraperResult to an external observability collaborator. A failed POST
// is logged and dropped; scraping never blocks or retries on the sink's
// behalf.
package metricssink

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/turphai/boomwatch/internal/adapter"
	"github.com/turphai/boomwatch/internal/domain"
)

type payload struct {
	Scraper         string  `json:"scraper"`
	Success         bool    `json:"success"`
	DurationSeconds float64 `json:"duration_seconds"`
	RetryCount      int     `json:"retry_count"`
	UsedFallback    bool    `json:"used_fallback"`
	Confidence      float64 `json:"confidence"`
}

// Sink POSTs a compact summary of every ScraperResult to URL.
type Sink struct {
	http *resty.Client
	url  string
	log  *zap.SugaredLogger
}

func New(http *resty.Client, url string, log *zap.SugaredLogger) *Sink {
	return &Sink{http: http, url: url, log: log}
}

// Report is a ResultHook suitable for scheduler.Scheduler.OnResult.
func (s *Sink) Report(ctx context.Context, a adapter.Adapter, result domain.ScraperResult) {
	if s.url == "" || result.Skipped {
		return
	}
	ds, metric, _ := a.Identity()

	var confidence float64
	if result.MetricPoint != nil {
		confidence = result.MetricPoint.Confidence
	}

	body := payload{
		Scraper:         string(ds) + "/" + metric,
		Success:         result.Success,
		DurationSeconds: result.ExecutionDuration.Seconds(),
		RetryCount:      result.RetryCount,
		UsedFallback:    result.UsedFallback,
		Confidence:      confidence,
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := s.http.R().SetContext(reqCtx).SetBody(body).Post(s.url); err != nil {
		if s.log != nil {
			s.log.Warnw("metrics sink post failed", "scraper", body.Scraper, "error", err)
		}
	}
}
