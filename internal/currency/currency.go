// Package currency converts amounts between currencies using rates from an
// HTTP rate service. Conversion is best effort: on any failure the original
// amount comes back unchanged, so a view never breaks because the rate
// service is down.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"tally/internal/cache"
	"tally/internal/core"
)

// Converter fetches and caches exchange rates.
type Converter struct {
	ratesURL string
	client   *http.Client
	rates    *cache.LRUCache[decimal.Decimal]
	logger   *slog.Logger
}

func NewConverter(ratesURL string, cacheSize int, ttl time.Duration) *Converter {
	return &Converter{
		ratesURL: ratesURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		rates:    cache.NewLRUCache[decimal.Decimal](cacheSize, ttl),
		logger:   slog.Default(),
	}
}

// Convert returns amount expressed in the target currency, rounded half up
// to cents. When the rate cannot be resolved the original amount is
// returned as is.
func (c *Converter) Convert(ctx context.Context, amount core.Money, from, to string) core.Money {
	from = normalizeCode(from)
	to = normalizeCode(to)
	if from == to {
		return amount
	}

	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		c.logger.WarnContext(ctx, "currency conversion skipped", "from", from, "to", to, "error", err)
		return amount
	}

	converted := decimal.New(amount.Cents, -2).Mul(rate).Round(2)
	return core.Money{Cents: converted.Shift(2).IntPart()}
}

// Rate resolves the exchange rate from one currency to another, consulting
// the cache first.
func (c *Converter) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from = normalizeCode(from)
	to = normalizeCode(to)

	if money.GetCurrency(from) == nil {
		return decimal.Zero, fmt.Errorf("unknown currency code %q", from)
	}
	if money.GetCurrency(to) == nil {
		return decimal.Zero, fmt.Errorf("unknown currency code %q", to)
	}
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	if rate, ok := c.rates.Get(key(from, to)); ok {
		return rate, nil
	}

	rate, err := c.fetchRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	c.rates.Set(key(from, to), rate)
	return rate, nil
}

func (c *Converter) fetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	uri := fmt.Sprintf("%s?base=%s&symbols=%s", c.ratesURL, url.QueryEscape(from), url.QueryEscape(to))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate service replied %s", resp.Status)
	}

	// Rates decode through json.Number so the decimal keeps the service's
	// exact digits.
	var payload struct {
		Base  string                 `json:"base"`
		Rates map[string]json.Number `json:"rates"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate response: %w", err)
	}

	raw, ok := payload.Rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("rate service has no %s rate for base %s", to, from)
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q: %w", raw.String(), err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid rate %s for %s", rate, key(from, to))
	}
	return rate, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func key(from, to string) string {
	return from + "/" + to
}
