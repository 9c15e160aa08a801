// Package bankprovision is the illustrative quarterly bank non-bank-exposure
// provision adapter (spec §4.6): it parses a 10-Q-like filing endpoint for a
// disclosed provision-for-credit-losses line tied to non-bank financial
// counterparties.
package bankprovision

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"

	"github.com/turphai/boomwatch/internal/adapter"
	"github.com/turphai/boomwatch/internal/apperrors"
	"github.com/turphai/boomwatch/internal/appctx"
	"github.com/turphai/boomwatch/internal/domain"
)

const metricName = "nonbank_provision"

// Adapter fetches a bank's disclosed non-bank-exposure provision from a
// 10-Q-like HTML filing, selecting the line item via an XPath expression.
type Adapter struct {
	ctx             *appctx.Context
	filingURL       string
	fallbackURL     string
	provisionSelector string
}

func New(ctx *appctx.Context, filingURL, fallbackURL, provisionSelector string) *Adapter {
	if provisionSelector == "" {
		provisionSelector = "//td[@data-line='nonbank-provision']"
	}
	return &Adapter{ctx: ctx, filingURL: filingURL, fallbackURL: fallbackURL, provisionSelector: provisionSelector}
}

func (a *Adapter) Identity() (domain.DataSource, string, domain.Unit) {
	return domain.SourceBankProvision, metricName, domain.UnitCurrency
}

func (a *Adapter) Schema() adapter.Schema {
	return adapter.Schema{
		Fields: []adapter.FieldSchema{
			{Name: "value", Required: true, HasRange: true, Min: 0, Max: 1e11},
		},
	}
}

func (a *Adapter) SourceFlag() string               { return "10q_filing" }
func (a *Adapter) FallbackSourceFlag() string        { return "earnings_supplement_fallback" }
func (a *Adapter) PreferredCacheTTL() time.Duration { return 95 * 24 * time.Hour }

func (a *Adapter) Fetch(ctx context.Context) (adapter.RawReading, error) {
	value, err := a.fetchProvision(ctx, a.filingURL)
	if err != nil {
		return adapter.RawReading{}, err
	}
	return adapter.RawReading{
		Value:     value,
		Metadata:  map[string]any{"source": a.SourceFlag()},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (a *Adapter) Fallback(ctx context.Context) (adapter.RawReading, bool) {
	if a.fallbackURL == "" {
		return adapter.RawReading{}, false
	}
	value, err := a.fetchProvision(ctx, a.fallbackURL)
	if err != nil {
		return adapter.RawReading{}, false
	}
	return adapter.RawReading{
		Value:     value,
		Metadata:  map[string]any{"source": a.FallbackSourceFlag()},
		FetchedAt: time.Now().UTC(),
	}, true
}

// SecondarySources is unset for this illustrative adapter: a real deployment
// would cross-check against a peer bank's supplemental earnings deck.
func (a *Adapter) SecondarySources(ctx context.Context) []adapter.RawReading { return nil }

func (a *Adapter) fetchProvision(ctx context.Context, url string) (float64, error) {
	release, err := a.ctx.AcquireHost(ctx, url)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindTransport, "bankprovision", "acquire host concurrency slot").WithRetryable(true)
	}
	defer release()

	resp, err := a.ctx.HTTP.R().SetContext(ctx).Get(url)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindTransport, "bankprovision", "fetch filing").WithRetryable(true)
	}
	if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
		return 0, apperrors.Newf(apperrors.KindTransport, "bankprovision", "filing endpoint returned %d", resp.StatusCode()).WithRetryable(true)
	}
	if resp.IsError() {
		return 0, apperrors.Newf(apperrors.KindParseSchema, "bankprovision", "filing endpoint returned %d", resp.StatusCode())
	}

	doc, err := htmlquery.Parse(strings.NewReader(resp.String()))
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindParseSchema, "bankprovision", "parse filing html")
	}

	node := htmlquery.FindOne(doc, a.provisionSelector)
	if node == nil {
		return 0, apperrors.New(apperrors.KindParseSchema, "bankprovision", "provision line not found in filing")
	}

	text := strings.TrimSpace(htmlquery.InnerText(node))
	negative := strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")")
	text = strings.Trim(text, "()")
	text = strings.TrimPrefix(text, "$")
	text = strings.ReplaceAll(text, ",", "")
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.KindParseSchema, "bankprovision", "parse provision value %q", text)
	}
	if negative {
		value = -value
	}
	return value, nil
}
