// Package creditfund is the illustrative quarterly private-credit fund NAV
// mark adapter (spec §4.6): it parses a Form-PF-like filing endpoint for a
// fund's reported net-asset-value-per-unit.
package creditfund

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

const metricName = "nav_per_unit"

// Adapter fetches a private-credit fund's latest NAV mark from an HTML
// filing page, selecting the reported per-unit NAV via an XPath expression.
type Adapter struct {
	ctx          *appctx.Context
	filingURL    string
	fallbackURL  string
	navSelector  string
}

func New(ctx *appctx.Context, filingURL, fallbackURL, navSelector string) *Adapter {
	if navSelector == "" {
		navSelector = "//span[@data-field='nav-per-unit']"
	}
	return &Adapter{ctx: ctx, filingURL: filingURL, fallbackURL: fallbackURL, navSelector: navSelector}
}

func (a *Adapter) Identity() (domain.DataSource, string, domain.Unit) {
	return domain.SourceCreditFund, metricName, domain.UnitCurrency
}

func (a *Adapter) Schema() adapter.Schema {
	return adapter.Schema{
		Fields: []adapter.FieldSchema{
			{Name: "value", Required: true, HasRange: true, Min: 0, Max: 1e6},
		},
	}
}

func (a *Adapter) SourceFlag() string               { return "form_pf_filing" }
func (a *Adapter) FallbackSourceFlag() string        { return "fund_admin_statement_fallback" }
func (a *Adapter) PreferredCacheTTL() time.Duration { return 95 * 24 * time.Hour }

func (a *Adapter) Fetch(ctx context.Context) (adapter.RawReading, error) {
	nav, err := a.fetchNAV(ctx, a.filingURL)
	if err != nil {
		return adapter.RawReading{}, err
	}
	return adapter.RawReading{
		Value:     nav,
		Metadata:  map[string]any{"source": a.SourceFlag()},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (a *Adapter) Fallback(ctx context.Context) (adapter.RawReading, bool) {
	if a.fallbackURL == "" {
		return adapter.RawReading{}, false
	}
	nav, err := a.fetchNAV(ctx, a.fallbackURL)
	if err != nil {
		return adapter.RawReading{}, false
	}
	return adapter.RawReading{
		Value:     nav,
		Metadata:  map[string]any{"source": a.FallbackSourceFlag()},
		FetchedAt: time.Now().UTC(),
	}, true
}

// SecondarySources is unset for this illustrative adapter: a real deployment
// would cross-check against an independent fund administrator statement.
func (a *Adapter) SecondarySources(ctx context.Context) []adapter.RawReading { return nil }

func (a *Adapter) fetchNAV(ctx context.Context, url string) (float64, error) {
	release, err := a.ctx.AcquireHost(ctx, url)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindTransport, "creditfund", "acquire host concurrency slot").WithRetryable(true)
	}
	defer release()

	resp, err := a.ctx.HTTP.R().SetContext(ctx).Get(url)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindTransport, "creditfund", "fetch filing").WithRetryable(true)
	}
	if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
		return 0, apperrors.Newf(apperrors.KindTransport, "creditfund", "filing endpoint returned %d", resp.StatusCode()).WithRetryable(true)
	}
	if resp.IsError() {
		return 0, apperrors.Newf(apperrors.KindParseSchema, "creditfund", "filing endpoint returned %d", resp.StatusCode())
	}

	doc, err := htmlquery.Parse(strings.NewReader(resp.String()))
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindParseSchema, "creditfund", "parse filing html")
	}

	node := htmlquery.FindOne(doc, a.navSelector)
	if node == nil {
		return 0, apperrors.New(apperrors.KindParseSchema, "creditfund", "nav field not found in filing")
	}

	text := strings.TrimSpace(htmlquery.InnerText(node))
	text = strings.TrimPrefix(text, "$")
	text = strings.ReplaceAll(text, ",", "")
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.KindParseSchema, "creditfund", "parse nav value %q", text)
	}
	return value, nil
}
