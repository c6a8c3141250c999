// Package engine is the entry point transports call into. It verifies and normalises
// inbound facts, runs them through the state machine under the order lock and keeps
// the amount encoder in step with committed transitions.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-paywatch/payment"
	"go-paywatch/payment/amount"
	"go-paywatch/payment/event"
	"go-paywatch/payment/monitor"
	"go-paywatch/payment/order"
	"go-paywatch/payment/rates"
	"go-paywatch/payment/reconcile"
	"go-paywatch/payment/signature"

	"github.com/shopspring/decimal"
)

const DefaultPaymentTimeout = 15 * time.Minute

type Config struct {
	// StaticWallet makes every payment go to StaticAddress, told apart by amount.
	StaticWallet    bool
	StaticAddress   string
	DefaultNetwork  payment.Network
	DefaultToken    payment.Token
	TokenDecimals   int32
	MaxAmountOffset decimal.Decimal
	PaymentTimeout  time.Duration
	StoreCurrency   string
}

// Monitor is what the engine needs from the monitoring service.
type Monitor interface {
	monitor.StatusSource
	Create(ctx context.Context, req monitor.CreateRequest) (monitor.CreateResponse, error)
	Confirm(ctx context.Context, confirmURL, paymentID, txid string) (monitor.ConfirmResponse, error)
}

type Engine struct {
	cfg      Config
	store    *order.Store
	verifier *signature.Verifier
	monitor  Monitor
	poller   *monitor.Poller
	encoder  *amount.Encoder
	rates    *rates.Converter
	log      *slog.Logger
	now      func() time.Time
}

func New(cfg Config, store *order.Store, verifier *signature.Verifier, mon Monitor, conv *rates.Converter, logger *slog.Logger) *Engine {
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = DefaultPaymentTimeout
	}
	if cfg.TokenDecimals <= 0 {
		cfg.TokenDecimals = amount.DefaultDecimals
	}
	if cfg.DefaultNetwork == "" {
		cfg.DefaultNetwork = payment.NetworkTron
	}
	if cfg.DefaultToken == "" {
		cfg.DefaultToken = payment.TokenUSDT
	}
	if cfg.StoreCurrency == "" {
		cfg.StoreCurrency = "USD"
	}
	if conv == nil {
		conv = rates.Static(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		verifier: verifier,
		monitor:  mon,
		poller:   monitor.NewPoller(mon),
		encoder:  amount.NewEncoder(cfg.TokenDecimals, cfg.MaxAmountOffset),
		rates:    conv,
		log:      logger,
		now:      time.Now,
	}
}

type requestIDKey struct{}

// WithRequestID tags ctx so notes and log lines written on its behalf can be correlated.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (e *Engine) audit(ctx context.Context, src payment.Source) order.Audit {
	return order.Audit{Source: src, RequestID: RequestID(ctx)}
}

// Result is the outcome of one inbound event.
type Result struct {
	PaymentID        string
	Status           payment.Status
	OrderStatus      reconcile.OrderStatus
	AlreadyProcessed bool
	Changed          bool
}

type WebhookRequest struct {
	Body      []byte
	Signature string
	Timestamp string
	Event     string
}

// HandleWebhook authenticates a delivery before anything is parsed or applied.
func (e *Engine) HandleWebhook(ctx context.Context, req WebhookRequest) (Result, error) {
	if err := e.verifier.Verify(req.Body, req.Signature, req.Timestamp); err != nil {
		e.log.Warn("webhook rejected", "request_id", RequestID(ctx), "code", payment.CodeOf(err), "err", err)
		return Result{}, err
	}
	ev, err := event.NormalizeWebhook(req.Body, req.Event, e.now())
	if err != nil {
		e.log.Warn("webhook malformed", "request_id", RequestID(ctx), "err", err)
		return Result{}, err
	}
	return e.HandleInboundEvent(ctx, ev)
}

// HandleInboundEvent applies ev to its payment. Redelivered terminal events succeed
// with AlreadyProcessed set and change nothing.
func (e *Engine) HandleInboundEvent(ctx context.Context, ev payment.InboundEvent) (Result, error) {
	return e.reconcile(ctx, ev, "")
}

func (e *Engine) reconcile(ctx context.Context, ev payment.InboundEvent, reason string) (Result, error) {
	if ev.PaymentID == "" {
		return Result{}, payment.ValidationError("event has no payment id", nil)
	}
	logger := e.log.With("request_id", RequestID(ctx), "payment_id", ev.PaymentID, "kind", ev.Kind.String(), "source", ev.Source)

	decide := func(cur payment.Request, snap reconcile.OrderSnapshot) (reconcile.Decision, error) {
		dec, err := reconcile.Apply(cur, snap, ev)
		if err == nil && reason != "" && dec.Changed() {
			dec.Effects = append(dec.Effects, reconcile.Annotate{Note: "Reason: " + reason})
		}
		return dec, err
	}

	out, err := e.store.Reconcile(ctx, ev.PaymentID, e.audit(ctx, ev.Source), decide)
	if err != nil {
		logger.Warn("event not applied", "code", payment.CodeOf(err), "err", err)
		return Result{}, err
	}

	if out.Decision.Release && e.cfg.StaticWallet {
		e.encoder.Release(out.Payment.Address, out.Payment.EffectiveAmount)
	}

	switch {
	case out.Decision.AlreadyProcessed:
		logger.Info("duplicate terminal event ignored", "status", out.Payment.Status)
	case out.Decision.Changed():
		logger.Info("payment event applied", "status", out.Payment.Status, "order_status", out.OrderStatus)
	default:
		logger.Debug("payment event changed nothing", "status", out.Payment.Status)
	}

	return Result{
		PaymentID:        out.Payment.ID,
		Status:           out.Payment.Status,
		OrderStatus:      out.OrderStatus,
		AlreadyProcessed: out.Decision.AlreadyProcessed,
		Changed:          out.Decision.Changed(),
	}, nil
}

type PollResult struct {
	PaymentID string
	// Status may be confirming, which is shown but never stored.
	Status payment.Status
	Final  bool
}

// HandlePoll answers a customer status check. Final payments are answered from the
// store; otherwise the monitoring service is asked without holding any lock and its
// answer goes through the same path as a webhook.
func (e *Engine) HandlePoll(ctx context.Context, paymentID string) (PollResult, error) {
	cur, err := e.store.Payment(ctx, paymentID)
	if err != nil {
		return PollResult{}, err
	}
	if cur.Status.Final() {
		return PollResult{PaymentID: cur.ID, Status: cur.Status, Final: true}, nil
	}

	ev, display, err := e.poller.Poll(ctx, paymentID)
	if err != nil {
		e.log.Warn("poll failed", "request_id", RequestID(ctx), "payment_id", paymentID, "code", payment.CodeOf(err), "err", err)
		return PollResult{}, err
	}
	if ev != nil && ev.Kind == payment.KindUnknown {
		// the sweep repeats this every interval; a note per poll would flood the order
		e.log.Warn("unsupported poll status", "request_id", RequestID(ctx), "payment_id", paymentID, "status", ev.RawName)
		ev = nil
	}
	if ev == nil {
		status := cur.Status
		if display == payment.StatusConfirming {
			status = display
		}
		return PollResult{PaymentID: cur.ID, Status: status}, nil
	}

	res, err := e.HandleInboundEvent(ctx, *ev)
	if err != nil {
		return PollResult{}, err
	}
	return PollResult{PaymentID: res.PaymentID, Status: res.Status, Final: res.Status.Final()}, nil
}

// Cancel closes an open payment on the operator's behalf and releases the order.
func (e *Engine) Cancel(ctx context.Context, paymentID, reason string) (Result, error) {
	ev := payment.InboundEvent{
		Kind:       payment.KindCancelled,
		RawName:    "cancelled",
		PaymentID:  paymentID,
		ObservedAt: e.now(),
		Source:     payment.SourceOperator,
	}
	return e.reconcile(ctx, ev, reason)
}

// Restore re-reserves the amount slots of payments that are still live.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if !e.cfg.StaticWallet {
		return 0, nil
	}
	active, err := e.store.ActivePayments(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("restore amount slots: %w", err)
	}
	for _, p := range active {
		e.encoder.Restore(p.Address, p.EffectiveAmount, p.ExpiresAt)
	}
	e.log.Info("amount slots restored", "count", len(active))
	return len(active), nil
}

// PollActive polls every open payment once, including those past their window whose
// close was never delivered. It backs up webhook delivery; a failure on one payment
// does not stop the others.
func (e *Engine) PollActive(ctx context.Context) (int, error) {
	active, err := e.store.OpenPayments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active payments: %w", err)
	}
	changed := 0
	for _, p := range active {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		res, err := e.HandlePoll(ctx, p.ID)
		if err != nil {
			continue
		}
		if res.Status != p.Status && res.Status != payment.StatusConfirming {
			changed++
		}
	}
	return changed, nil
}
