// Package monitor talks to the payment monitoring service: creating payment
// requests, polling their status and proxying customer confirmations.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-paywatch/payment"
	"go-paywatch/payment/event"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	DefaultTimeout = 10 * time.Second
	apiKeyHeader   = "X-API-Key"
)

type Client struct {
	http    *resty.Client
	timeout time.Duration
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	if apiKey != "" {
		c.SetHeader(apiKeyHeader, apiKey)
	}
	return &Client{http: c, timeout: timeout}
}

type CreateRequest struct {
	OrderRef  string          `json:"external_order_id"`
	Network   payment.Network `json:"network"`
	Token     payment.Token   `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
	Address   string          `json:"address,omitempty"` // static-wallet mode only
	ExpiresIn int64           `json:"expires_in,omitempty"`
}

type CreateResponse struct {
	PaymentID    string          `json:"payment_id"`
	Address      string          `json:"address"`
	Amount       decimal.Decimal `json:"amount"`
	ExpiresAt    time.Time       `json:"expires_at"`
	ConfirmURL   string          `json:"confirm_url"`
	RequiresTxID bool            `json:"requires_txid"`
}

type ConfirmResponse struct {
	OK      bool   `json:"ok"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// classify maps transport failures and statuses onto the error taxonomy.
func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return payment.TransientError(op, err)
	}
	if !resp.IsError() {
		return nil
	}
	msg := fmt.Sprintf("%s: monitoring service returned %s", op, resp.Status())
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		if detail := body.Error + body.Message; detail != "" {
			msg += ": " + detail
		}
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return payment.NotFoundError(msg)
	case code == http.StatusTooManyRequests || code >= 500:
		return payment.TransientError(msg, nil)
	default:
		return payment.ValidationError(msg, nil)
	}
}

// Status queries the monitoring service for one payment.
func (c *Client) Status(ctx context.Context, paymentID string) (event.PollResponse, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	var out event.PollResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/payments/{id}")
	if err := classify("status", resp, err); err != nil {
		return event.PollResponse{}, err
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	var out CreateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/payments")
	if err := classify("create", resp, err); err != nil {
		return CreateResponse{}, err
	}
	if out.PaymentID == "" || out.Address == "" {
		return CreateResponse{}, payment.TransientError("create: incomplete response from monitoring service", nil)
	}
	return out, nil
}

// Confirm forwards a customer-submitted transaction hash to the endpoint the
// monitoring service handed out at creation. It does not verify anything itself.
func (c *Client) Confirm(ctx context.Context, confirmURL, paymentID, txid string) (ConfirmResponse, error) {
	u, err := url.Parse(confirmURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ConfirmResponse{}, payment.ValidationError("invalid confirm endpoint", err)
	}

	ctx, cancel := c.bounded(ctx)
	defer cancel()

	var out ConfirmResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"payment_id": paymentID, "tx_hash": txid}).
		SetResult(&out).
		SetError(&errorBody{}).
		Post(u.String())
	if err := classify("confirm", resp, err); err != nil {
		return ConfirmResponse{}, err
	}
	return out, nil
}
