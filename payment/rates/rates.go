// Package rates converts order totals from the store currency into token amounts.
package rates

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-paywatch/payment"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	DefaultURL   = "https://open.er-api.com/v6/latest/USD"
	cacheTTL     = 5 * time.Minute
	fetchTimeout = 5 * time.Second
)

// fallback prices in USD per unit, used when a symbol is missing from the feed
var defaultRates = map[string]decimal.Decimal{
	"USD":  decimal.NewFromInt(1),
	"USDT": decimal.NewFromInt(1),
	"USDC": decimal.NewFromInt(1),
}

// --- Open ER API ---
type erResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

type Converter struct {
	http *resty.Client
	url  string
	now  func() time.Time

	mu        sync.Mutex
	cache     map[string]decimal.Decimal // symbol -> USD per unit
	fetchedAt time.Time
}

func NewConverter(url string) *Converter {
	if url == "" {
		url = DefaultURL
	}
	return &Converter{
		http: resty.New().SetTimeout(fetchTimeout),
		url:  url,
		now:  time.Now,
	}
}

// Static returns a converter that never goes to the network.
func Static(usdPerUnit map[string]decimal.Decimal) *Converter {
	c := &Converter{now: time.Now, cache: make(map[string]decimal.Decimal)}
	for k, v := range defaultRates {
		c.cache[k] = v
	}
	for k, v := range usdPerUnit {
		c.cache[strings.ToUpper(k)] = v
	}
	c.fetchedAt = time.Unix(1<<62, 0) // never stale
	return c
}

func (c *Converter) fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	var data erResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&data).Get(c.url)
	if err != nil {
		return nil, payment.TransientError("fetch rates", err)
	}
	if resp.IsError() {
		return nil, payment.TransientError(fmt.Sprintf("fetch rates: %s", resp.Status()), nil)
	}

	out := make(map[string]decimal.Decimal, len(data.Rates)+len(defaultRates))
	for k, v := range data.Rates {
		// 1 USD = v target, so 1 target = 1/v USD
		if v > 0 {
			out[strings.ToUpper(k)] = decimal.NewFromInt(1).Div(decimal.NewFromFloat(v))
		}
	}
	for k, v := range defaultRates {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out, nil
}

func (c *Converter) rates(ctx context.Context) (map[string]decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil && c.now().Sub(c.fetchedAt) < cacheTTL {
		return c.cache, nil
	}
	fresh, err := c.fetch(ctx)
	if err != nil {
		if c.cache != nil {
			return c.cache, nil // stale beats nothing
		}
		return nil, err
	}
	c.cache = fresh
	c.fetchedAt = c.now()
	return fresh, nil
}

// Convert amount from one currency or token to another.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount, nil
	}
	all, err := c.rates(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	rA, ok1 := all[from]
	rB, ok2 := all[to]
	if !ok1 || !ok2 || rB.IsZero() {
		return decimal.Zero, payment.ValidationError(fmt.Sprintf("unsupported currency %s or %s", from, to), nil)
	}
	return amount.Mul(rA).Div(rB), nil
}
