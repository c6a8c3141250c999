// Package reconcile decides how an inbound payment event changes a payment request
// and which order-side effects must follow. It performs no I/O.
package reconcile

import (
	"fmt"
	"strings"

	"go-paywatch/payment"

	"github.com/shopspring/decimal"
)

// OrderSnapshot is the part of the order the decision depends on.
type OrderSnapshot struct {
	Status       OrderStatus
	AllVirtual   bool
	StockReduced bool
}

type Decision struct {
	Next    payment.Status
	Effects []Effect
	// AlreadyProcessed marks a redelivered terminal event; it is a success.
	AlreadyProcessed bool
	// Release tells the caller to free the payment's amount slot after commit.
	Release bool
}

// Changed reports whether applying the decision writes anything.
func (d Decision) Changed() bool {
	return len(d.Effects) > 0
}

// Apply is the transition function. It never regresses a final status and never
// repeats the side effects of a terminal event once the latch is set.
func Apply(cur payment.Request, order OrderSnapshot, ev payment.InboundEvent) (Decision, error) {
	noop := Decision{Next: cur.Status}

	if ev.PaymentID != "" && ev.PaymentID != cur.ID {
		return noop, payment.ValidationError(fmt.Sprintf("event for %s applied to %s", ev.PaymentID, cur.ID), nil)
	}

	if cur.ProcessedTerminal && ev.Kind.Terminal() {
		noop.AlreadyProcessed = true
		return noop, nil
	}

	switch ev.Kind {
	case payment.KindCompleted, payment.KindOverpaid:
		return applyTerminal(cur, order, ev)
	case payment.KindPartial:
		return applyPartial(cur, order, ev)
	case payment.KindExpired, payment.KindCancelled:
		return applyClose(cur, order, ev)
	case payment.KindUnknown:
		noop.Effects = []Effect{Annotate{Note: fmt.Sprintf("Ignored unsupported payment event %q (%s).", ev.RawName, ev.Source)}}
		return noop, nil
	}
	return noop, fmt.Errorf("unhandled event kind %d", ev.Kind)
}

func applyTerminal(cur payment.Request, order OrderSnapshot, ev payment.InboundEvent) (Decision, error) {
	paid, err := parseAmount(ev.PaidAmount)
	if err != nil {
		return Decision{Next: cur.Status}, err
	}

	if !cur.Status.Open() {
		// Money arrived for a payment that was already closed; the operator decides.
		return Decision{
			Next: cur.Status,
			Effects: []Effect{Annotate{Note: fmt.Sprintf(
				"Late %s payment of %s %s received after the payment was %s. Tx: %s",
				ev.Kind, displayAmount(ev.PaidAmount), cur.Token, cur.Status, displayHash(ev.TxHash))}},
		}, nil
	}

	next := payment.StatusPaid
	if ev.Kind == payment.KindOverpaid {
		next = payment.StatusOverpaid
	}

	effects := []Effect{
		RecordPayment{PaidAmount: ev.PaidAmount, TxHash: ev.TxHash},
		SetPaymentStatus{Status: next},
		MarkTerminal{},
	}
	if !order.StockReduced {
		effects = append(effects, ReduceStock{})
	}
	effects = append(effects, SetOrderStatus{Status: OrderProcessing})
	if order.AllVirtual {
		effects = append(effects, SetOrderStatus{Status: OrderCompleted})
	}

	note := fmt.Sprintf("Payment confirmed: %s %s on %s. Tx: %s",
		displayAmount(ev.PaidAmount), cur.Token, cur.Network, displayHash(ev.TxHash))
	if next == payment.StatusOverpaid {
		note = fmt.Sprintf("Payment overpaid: received %s %s, expected %s %s",
			displayAmount(ev.PaidAmount), cur.Token, cur.RequestedAmount.String(), cur.Token)
		if paid != nil {
			note += fmt.Sprintf(" (excess %s %s)", paid.Sub(cur.RequestedAmount).String(), cur.Token)
		}
		note += fmt.Sprintf(". Tx: %s", displayHash(ev.TxHash))
	}
	effects = append(effects, Annotate{Note: note})

	return Decision{Next: next, Effects: effects, Release: true}, nil
}

func applyPartial(cur payment.Request, order OrderSnapshot, ev payment.InboundEvent) (Decision, error) {
	if _, err := parseAmount(ev.PaidAmount); err != nil {
		return Decision{Next: cur.Status}, err
	}
	if !cur.Status.Open() {
		return Decision{Next: cur.Status}, nil
	}
	if cur.Status == payment.StatusPartial && ev.PaidAmount == cur.PaidAmount {
		// same partial fact delivered again
		return Decision{Next: cur.Status}, nil
	}

	effects := []Effect{
		RecordPayment{PaidAmount: ev.PaidAmount, TxHash: ev.TxHash},
		SetPaymentStatus{Status: payment.StatusPartial},
	}
	if order.Status != OrderOnHold {
		effects = append(effects, SetOrderStatus{Status: OrderOnHold})
	}
	effects = append(effects, Annotate{Note: fmt.Sprintf(
		"Partial payment received: %s of %s %s. Waiting for the remainder.",
		displayAmount(ev.PaidAmount), cur.EffectiveAmount.String(), cur.Token)})

	return Decision{Next: payment.StatusPartial, Effects: effects}, nil
}

func applyClose(cur payment.Request, order OrderSnapshot, ev payment.InboundEvent) (Decision, error) {
	if !cur.Status.Open() {
		return Decision{Next: cur.Status}, nil
	}

	next := payment.StatusExpired
	note := "Payment window expired without full payment."
	if ev.Kind == payment.KindCancelled {
		next = payment.StatusCancelled
		note = "Payment cancelled by the operator."
		if ev.Source != payment.SourceOperator {
			note = "Payment cancelled by the monitoring service."
		}
	}
	if cur.Status == payment.StatusPartial && cur.PaidAmount != "" {
		note += fmt.Sprintf(" %s %s had been received and needs manual handling.", cur.PaidAmount, cur.Token)
	}

	effects := []Effect{SetPaymentStatus{Status: next}}
	if order.StockReduced {
		effects = append(effects, RestoreStock{})
	}
	effects = append(effects,
		SetOrderStatus{Status: OrderCancelled},
		Annotate{Note: note},
	)
	return Decision{Next: next, Effects: effects, Release: true}, nil
}

// parseAmount returns nil for an empty amount.
func parseAmount(s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, payment.ValidationError(fmt.Sprintf("paid_amount %q is not a decimal", s), err)
	}
	if d.IsNegative() {
		return nil, payment.ValidationError(fmt.Sprintf("paid_amount %q is negative", s), nil)
	}
	return &d, nil
}

func displayAmount(s string) string {
	if s == "" {
		return "an unreported amount of"
	}
	return s
}

func displayHash(h string) string {
	if h == "" {
		return "n/a"
	}
	return h
}
