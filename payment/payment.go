// Package payment holds the types shared by the reconciliation engine: payment
// statuses, inbound event kinds and the payment request record.
package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirming Status = "confirming" // display only, never persisted
	StatusPartial    Status = "partial"
	StatusPaid       Status = "paid"
	StatusOverpaid   Status = "overpaid"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

// Final reports whether no further transition may leave this status.
func (s Status) Final() bool {
	switch s {
	case StatusPaid, StatusOverpaid, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether the status still accepts payment events.
func (s Status) Open() bool {
	switch s {
	case StatusPending, StatusConfirming, StatusPartial:
		return true
	}
	return false
}

// Kind is the canonical classification of an inbound event.
type Kind int

const (
	KindUnknown Kind = iota
	KindCompleted
	KindOverpaid
	KindPartial
	KindExpired
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindCompleted:
		return "completed"
	case KindOverpaid:
		return "overpaid"
	case KindPartial:
		return "partial"
	case KindExpired:
		return "expired"
	case KindCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal kinds are the only ones whose redelivery is suppressed by the latch.
func (k Kind) Terminal() bool {
	return k == KindCompleted || k == KindOverpaid
}

type Source string

const (
	SourceWebhook  Source = "webhook"
	SourcePoll     Source = "poll"
	SourceOperator Source = "operator"
	SourceCheckout Source = "checkout"
)

type Network string

const (
	NetworkTron     Network = "tron"
	NetworkEthereum Network = "ethereum"
	NetworkBSC      Network = "bsc"
	NetworkPolygon  Network = "polygon"
	NetworkArbitrum Network = "arbitrum"
	NetworkBase     Network = "base"
)

// EVM reports whether addresses on the network are 20-byte hex addresses.
func (n Network) EVM() bool {
	switch n {
	case NetworkEthereum, NetworkBSC, NetworkPolygon, NetworkArbitrum, NetworkBase:
		return true
	}
	return false
}

func (n Network) Valid() bool {
	return n == NetworkTron || n.EVM()
}

type Token string

const (
	TokenUSDT Token = "USDT"
	TokenUSDC Token = "USDC"
	TokenTRX  Token = "TRX"
	TokenETH  Token = "ETH"
	TokenBNB  Token = "BNB"
	TokenPOL  Token = "POL"
)

func (t Token) Valid() bool {
	switch t {
	case TokenUSDT, TokenUSDC, TokenTRX, TokenETH, TokenBNB, TokenPOL:
		return true
	}
	return false
}

// Stable reports whether the token is pegged 1:1 to USD.
func (t Token) Stable() bool {
	return t == TokenUSDT || t == TokenUSDC
}

// Request is one monitored deposit expectation tied to one order.
type Request struct {
	ID                string
	OrderRef          string
	Network           Network
	Token             Token
	Address           string
	RequestedAmount   decimal.Decimal
	EffectiveAmount   decimal.Decimal
	ExpiresAt         time.Time
	Status            Status
	ProcessedTerminal bool
	PaidAmount        string
	TxHash            string
	ConfirmURL        string
	RequiresTxID      bool
}

// InboundEvent is the canonical form of a webhook delivery or poll answer.
// Amount and hash stay opaque strings until the state machine reads them.
type InboundEvent struct {
	Kind         Kind
	RawName      string
	PaymentID    string
	OrderRefHint string
	PaidAmount   string
	TxHash       string
	Network      string
	Token        string
	ObservedAt   time.Time
	Source       Source
}
