package monitor

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go-paywatch/payment"
	"go-paywatch/payment/event"
)

// StatusSource is the subset of Client the poller needs.
type StatusSource interface {
	Status(ctx context.Context, paymentID string) (event.PollResponse, error)
}

type Poller struct {
	source StatusSource
	now    func() time.Time
}

func NewPoller(source StatusSource) *Poller {
	return &Poller{source: source, now: time.Now}
}

// Poll asks the monitoring service about paymentID. A still-pending answer yields
// a nil event and the status to display; nothing is synthesised for it.
func (p *Poller) Poll(ctx context.Context, paymentID string) (*payment.InboundEvent, payment.Status, error) {
	resp, err := p.source.Status(ctx, paymentID)
	if err != nil {
		return nil, "", err
	}
	return event.NormalizePoll(paymentID, resp, p.now())
}

var hexTxID = regexp.MustCompile(`^[0-9a-fA-F]{10,128}$`)

// ValidateTxID strips an optional 0x prefix and checks for 10-128 hex characters.
func ValidateTxID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if !hexTxID.MatchString(s) {
		return "", payment.ValidationError("transaction hash must be 10 to 128 hex characters", nil)
	}
	return s, nil
}
