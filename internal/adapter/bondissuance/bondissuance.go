// Package bondissuance is the illustrative weekly investment-grade bond
// issuance adapter (spec §4.6): it fetches an RSS feed of pricing
// announcements and sums the week's issuance total. Parsing logic is kept
// isolated here per spec §9 ("composite value objects parsed from HTML/XBRL
// ... the core does not embed parsing logic") — the core depends only on
// the Adapter interface.
package bondissuance

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/turphai/boomwatch/internal/adapter"
	"github.com/turphai/boomwatch/internal/apperrors"
	"github.com/turphai/boomwatch/internal/appctx"
	"github.com/turphai/boomwatch/internal/domain"
)

const metricName = "weekly_total"

// Adapter fetches the weekly investment-grade issuance total from an RSS
// feed of pricing announcements (each <item> carrying an amount in its
// description, e.g. "$1.25bn 10Y notes priced").
type Adapter struct {
	ctx          *appctx.Context
	feedURL      string
	fallbackURL  string
}

func New(ctx *appctx.Context, feedURL, fallbackURL string) *Adapter {
	return &Adapter{ctx: ctx, feedURL: feedURL, fallbackURL: fallbackURL}
}

func (a *Adapter) Identity() (domain.DataSource, string, domain.Unit) {
	return domain.SourceBondIssuance, metricName, domain.UnitCurrency
}

func (a *Adapter) Schema() adapter.Schema {
	return adapter.Schema{
		Fields: []adapter.FieldSchema{
			{Name: "value", Required: true, HasRange: true, Min: 0, Max: 1e12},
		},
	}
}

func (a *Adapter) SourceFlag() string         { return "ig_pricing_feed" }
func (a *Adapter) FallbackSourceFlag() string { return "finra_trace_fallback" }
func (a *Adapter) PreferredCacheTTL() time.Duration { return 7 * 24 * time.Hour }

func (a *Adapter) Fetch(ctx context.Context) (adapter.RawReading, error) {
	total, deals, err := a.fetchFeedTotal(ctx, a.feedURL)
	if err != nil {
		return adapter.RawReading{}, err
	}
	return adapter.RawReading{
		Value:     total,
		Metadata:  map[string]any{"deal_count": deals, "source": a.SourceFlag()},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Fallback tries a secondary pricing feed URL when the primary has
// exhausted its retry budget; it returns ok=false when no fallback URL is
// configured.
func (a *Adapter) Fallback(ctx context.Context) (adapter.RawReading, bool) {
	if a.fallbackURL == "" {
		return adapter.RawReading{}, false
	}
	total, deals, err := a.fetchFeedTotal(ctx, a.fallbackURL)
	if err != nil {
		return adapter.RawReading{}, false
	}
	return adapter.RawReading{
		Value:     total,
		Metadata:  map[string]any{"deal_count": deals, "source": a.FallbackSourceFlag()},
		FetchedAt: time.Now().UTC(),
	}, true
}

// SecondarySources is a no-op: real cross-validation against FINRA TRACE
// and S&P CapitalIQ is not wired in this illustrative adapter (spec §9 open
// question: secondaries are optional and tolerant of absence).
func (a *Adapter) SecondarySources(ctx context.Context) []adapter.RawReading { return nil }

func (a *Adapter) fetchFeedTotal(ctx context.Context, url string) (float64, int, error) {
	release, err := a.ctx.AcquireHost(ctx, url)
	if err != nil {
		return 0, 0, apperrors.Wrap(err, apperrors.KindTransport, "bondissuance", "acquire host concurrency slot").WithRetryable(true)
	}
	defer release()

	resp, err := a.ctx.HTTP.R().SetContext(ctx).Get(url)
	if err != nil {
		return 0, 0, apperrors.Wrap(err, apperrors.KindTransport, "bondissuance", "fetch rss feed").WithRetryable(true)
	}
	if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
		return 0, 0, apperrors.Newf(apperrors.KindTransport, "bondissuance", "feed returned %d", resp.StatusCode()).WithRetryable(true)
	}
	if resp.IsError() {
		return 0, 0, apperrors.Newf(apperrors.KindParseSchema, "bondissuance", "feed returned %d", resp.StatusCode())
	}

	doc, err := xmlquery.Parse(strings.NewReader(resp.String()))
	if err != nil {
		return 0, 0, apperrors.Wrap(err, apperrors.KindParseSchema, "bondissuance", "parse rss")
	}

	items := xmlquery.Find(doc, "//item")
	var total float64
	for _, item := range items {
		desc := xmlquery.FindOne(item, "description")
		if desc == nil {
			continue
		}
		if amount, ok := parseDealAmount(desc.InnerText()); ok {
			total += amount
		}
	}
	return total, len(items), nil
}

// parseDealAmount extracts a dollar amount like "$1.25bn" from free text.
func parseDealAmount(text string) (float64, bool) {
	idx := strings.Index(text, "$")
	if idx < 0 {
		return 0, false
	}
	rest := text[idx+1:]
	end := 0
	for end < len(rest) && (isDigit(rest[end]) || rest[end] == '.') {
		end++
	}
	if end == 0 {
		return 0, false
	}
	num, err := strconv.ParseFloat(rest[:end], 64)
	if err != nil {
		return 0, false
	}
	switch {
	case strings.HasPrefix(rest[end:], "bn"):
		return num * 1_000_000_000, true
	case strings.HasPrefix(rest[end:], "mm"), strings.HasPrefix(rest[end:], "m"):
		return num * 1_000_000, true
	default:
		return num, true
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
