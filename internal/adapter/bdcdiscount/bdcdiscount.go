// Package bdcdiscount is the illustrative daily BDC discount-to-NAV
// adapter (spec §4.6, GLOSSARY): discount = (NAV - price) / NAV across a
// configured basket of BDC tickers, averaged into one daily reading.
package bdcdiscount

import (
	"context"
	"fmt"
	"time"

	"github.com/turphai/boomwatch/internal/adapter"
	"github.com/turphai/boomwatch/internal/apperrors"
	"github.com/turphai/boomwatch/internal/appctx"
	"github.com/turphai/boomwatch/internal/domain"
)

const metricName = "daily_discount"

type quote struct {
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	NAV    float64 `json:"nav"`
}

type quoteResponse struct {
	Quotes []quote `json:"quotes"`
}

// Adapter fetches a basket of BDC price/NAV quotes from a JSON endpoint and
// averages the per-ticker discount-to-NAV.
type Adapter struct {
	ctx         *appctx.Context
	quoteURL    string
	fallbackURL string
	tickers     []string
}

func New(ctx *appctx.Context, quoteURL, fallbackURL string, tickers []string) *Adapter {
	return &Adapter{ctx: ctx, quoteURL: quoteURL, fallbackURL: fallbackURL, tickers: tickers}
}

func (a *Adapter) Identity() (domain.DataSource, string, domain.Unit) {
	return domain.SourceBDCDiscount, metricName, domain.UnitRatio
}

func (a *Adapter) Schema() adapter.Schema {
	return adapter.Schema{
		Fields: []adapter.FieldSchema{
			{Name: "value", Required: true, HasRange: true, Min: -1, Max: 1},
		},
	}
}

func (a *Adapter) SourceFlag() string               { return "bdc_quotes_api" }
func (a *Adapter) FallbackSourceFlag() string        { return "yahoo_finance_fallback" }
func (a *Adapter) PreferredCacheTTL() time.Duration { return 24 * time.Hour }

func (a *Adapter) Fetch(ctx context.Context) (adapter.RawReading, error) {
	return a.fetchFrom(ctx, a.quoteURL, a.SourceFlag())
}

func (a *Adapter) Fallback(ctx context.Context) (adapter.RawReading, bool) {
	if a.fallbackURL == "" {
		return adapter.RawReading{}, false
	}
	reading, err := a.fetchFrom(ctx, a.fallbackURL, a.FallbackSourceFlag())
	if err != nil {
		return adapter.RawReading{}, false
	}
	return reading, true
}

// SecondarySources re-fetches the same basket as a best-effort corroboration
// pass; a real deployment would point this at an independent data vendor.
func (a *Adapter) SecondarySources(ctx context.Context) []adapter.RawReading {
	reading, err := a.fetchFrom(ctx, a.quoteURL, "secondary")
	if err != nil {
		return nil
	}
	return []adapter.RawReading{reading}
}

func (a *Adapter) fetchFrom(ctx context.Context, url, sourceFlag string) (adapter.RawReading, error) {
	release, err := a.ctx.AcquireHost(ctx, url)
	if err != nil {
		return adapter.RawReading{}, apperrors.Wrap(err, apperrors.KindTransport, "bdcdiscount", "acquire host concurrency slot").WithRetryable(true)
	}
	defer release()

	var body quoteResponse
	resp, err := a.ctx.HTTP.R().SetContext(ctx).SetResult(&body).Get(url)
	if err != nil {
		return adapter.RawReading{}, apperrors.Wrap(err, apperrors.KindTransport, "bdcdiscount", "fetch quotes").WithRetryable(true)
	}
	if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
		return adapter.RawReading{}, apperrors.Newf(apperrors.KindTransport, "bdcdiscount", "quote endpoint returned %d", resp.StatusCode()).WithRetryable(true)
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return adapter.RawReading{}, apperrors.Newf(apperrors.KindAuthConfig, "bdcdiscount", "quote endpoint returned %d", resp.StatusCode())
	}
	if len(body.Quotes) == 0 {
		return adapter.RawReading{}, apperrors.New(apperrors.KindParseSchema, "bdcdiscount", "empty quote basket")
	}

	var sum float64
	counted := 0
	tickers := make(map[string]any, len(body.Quotes))
	for _, q := range body.Quotes {
		if q.NAV == 0 {
			continue
		}
		discount := (q.NAV - q.Price) / q.NAV
		sum += discount
		counted++
		tickers[q.Ticker] = fmt.Sprintf("%.4f", discount)
	}
	if counted == 0 {
		return adapter.RawReading{}, apperrors.New(apperrors.KindParseSchema, "bdcdiscount", "no quote with a nonzero NAV")
	}

	avg := sum / float64(counted)
	return adapter.RawReading{
		Value:     avg,
		Metadata:  map[string]any{"tickers": tickers, "source": sourceFlag},
		FetchedAt: time.Now().UTC(),
	}, nil
}
