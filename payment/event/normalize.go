// Package event turns webhook bodies and poll answers into payment.InboundEvent.
package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"go-paywatch/payment"
)

// opaque accepts a JSON string or number and keeps its literal text.
type opaque string

func (o *opaque) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*o = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = opaque(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*o = opaque(n.String())
	return nil
}

// WebhookBody is the JSON document the monitoring service posts.
type WebhookBody struct {
	Event           string `json:"event"`
	PaymentID       opaque `json:"payment_id"`
	ExternalOrderID opaque `json:"external_order_id"`
	PaidAmount      opaque `json:"paid_amount"`
	TxHash          string `json:"tx_hash"`
	Network         string `json:"network"`
	Token           string `json:"token"`
}

// PollResponse is the monitoring service's answer to a status query.
type PollResponse struct {
	Status     string `json:"status"`
	PaidAmount opaque `json:"paid_amount"`
	TxHash     string `json:"tx_hash"`
	Network    string `json:"network"`
	Token      string `json:"token"`
}

func NewPollResponse(status, paidAmount string) PollResponse {
	return PollResponse{Status: status, PaidAmount: opaque(paidAmount)}
}

var webhookKinds = map[string]payment.Kind{
	"completed":         payment.KindCompleted,
	"paid":              payment.KindCompleted,
	"payment.completed": payment.KindCompleted,
	"payment.paid":      payment.KindCompleted,
	"overpaid":          payment.KindOverpaid,
	"payment.overpaid":  payment.KindOverpaid,
	"partial":           payment.KindPartial,
	"partially_paid":    payment.KindPartial,
	"underpaid":         payment.KindPartial,
	"payment.partial":   payment.KindPartial,
	"expired":           payment.KindExpired,
	"payment.expired":   payment.KindExpired,
	"cancelled":         payment.KindCancelled,
	"canceled":          payment.KindCancelled,
	"payment.cancelled": payment.KindCancelled,
	"payment.canceled":  payment.KindCancelled,
}

// KindOf maps an event name to its kind. Unrecognised names are KindUnknown.
func KindOf(name string) payment.Kind {
	if k, ok := webhookKinds[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k
	}
	return payment.KindUnknown
}

// NormalizeWebhook parses a verified webhook body. The event name in the body wins
// over the header.
func NormalizeWebhook(body []byte, eventHeader string, now time.Time) (payment.InboundEvent, error) {
	var wb WebhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return payment.InboundEvent{}, payment.ValidationError("malformed webhook body", err)
	}
	if wb.PaymentID == "" {
		return payment.InboundEvent{}, payment.ValidationError("missing payment_id", nil)
	}

	name := wb.Event
	if name == "" {
		name = eventHeader
	}
	if strings.TrimSpace(name) == "" {
		return payment.InboundEvent{}, payment.ValidationError("missing event name", nil)
	}

	return payment.InboundEvent{
		Kind:         KindOf(name),
		RawName:      name,
		PaymentID:    string(wb.PaymentID),
		OrderRefHint: string(wb.ExternalOrderID),
		PaidAmount:   string(wb.PaidAmount),
		TxHash:       strings.TrimSpace(wb.TxHash),
		Network:      wb.Network,
		Token:        wb.Token,
		ObservedAt:   now,
		Source:       payment.SourceWebhook,
	}, nil
}

// NormalizePoll maps a poll answer onto the webhook vocabulary. Statuses that mean
// "still waiting" yield a nil event together with the status to display.
func NormalizePoll(paymentID string, resp PollResponse, now time.Time) (*payment.InboundEvent, payment.Status, error) {
	if paymentID == "" {
		return nil, "", payment.ValidationError("missing payment_id", nil)
	}

	var kind payment.Kind
	status := payment.Status(strings.ToLower(strings.TrimSpace(resp.Status)))
	switch status {
	case payment.StatusPending, payment.StatusConfirming:
		return nil, status, nil
	case payment.StatusPartial:
		kind = payment.KindPartial
	case payment.StatusPaid:
		kind = payment.KindCompleted
	case payment.StatusOverpaid:
		kind = payment.KindOverpaid
	case payment.StatusExpired:
		kind = payment.KindExpired
	case payment.StatusCancelled, "canceled":
		kind, status = payment.KindCancelled, payment.StatusCancelled
	default:
		kind = payment.KindUnknown
	}

	return &payment.InboundEvent{
		Kind:       kind,
		RawName:    resp.Status,
		PaymentID:  paymentID,
		PaidAmount: string(resp.PaidAmount),
		TxHash:     strings.TrimSpace(resp.TxHash),
		Network:    resp.Network,
		Token:      resp.Token,
		ObservedAt: now,
		Source:     payment.SourcePoll,
	}, status, nil
}
