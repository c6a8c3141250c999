// Package amount maps a requested amount to a unique effective amount so many
// payments can share one static wallet address.
// effective amount = requested amount + n * unit, where unit is the token's smallest
// unit (1 sun = 0.000001 TRX, 0.000001 USDT) and n is the smallest free slot.
package amount

import (
	"errors"
	"sync"
	"time"

	"go-paywatch/payment"

	"github.com/shopspring/decimal"
)

const DefaultDecimals = 6

var DefaultMaxOffset = decimal.RequireFromString("0.005")

var ErrExhausted = errors.New("no free amount slot within the offset bound")

type addressSlots struct {
	set    *IntervalSet
	expiry map[int64]time.Time // slot -> expiry, zero means no expiry
}

type Encoder struct {
	decimals  int32
	maxOffset int64 // in smallest units
	now       func() time.Time

	mu    sync.Mutex
	slots map[string]*addressSlots // address -> occupied effective amounts
}

func NewEncoder(decimals int32, maxOffset decimal.Decimal) *Encoder {
	if decimals <= 0 {
		decimals = DefaultDecimals
	}
	if !maxOffset.IsPositive() {
		maxOffset = DefaultMaxOffset
	}
	return &Encoder{
		decimals:  decimals,
		maxOffset: maxOffset.Shift(decimals).IntPart(),
		now:       time.Now,
		slots:     make(map[string]*addressSlots),
	}
}

func (e *Encoder) units(d decimal.Decimal) int64 {
	return d.Shift(e.decimals).Ceil().IntPart()
}

func (e *Encoder) forAddress(address string) *addressSlots {
	s, ok := e.slots[address]
	if !ok {
		s = &addressSlots{set: NewIntervalSet(), expiry: make(map[int64]time.Time)}
		e.slots[address] = s
	}
	return s
}

// prune frees slots whose payment window has passed without an explicit release.
func (e *Encoder) prune(s *addressSlots) {
	now := e.now()
	for slot, exp := range s.expiry {
		if !exp.IsZero() && now.After(exp) {
			s.set.Remove(slot)
			delete(s.expiry, slot)
		}
	}
}

// Encode reserves and returns the smallest free effective amount >= base for address.
func (e *Encoder) Encode(address string, base decimal.Decimal, expiresAt time.Time) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return decimal.Zero, payment.ValidationError("amount must be positive", nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.forAddress(address)
	e.prune(s)

	baseUnits := e.units(base)
	slot := s.set.NextMissing(baseUnits)
	if slot-baseUnits > e.maxOffset {
		return decimal.Zero, payment.TransientError("encode amount", ErrExhausted)
	}
	s.set.Add(slot)
	s.expiry[slot] = expiresAt

	return decimal.New(slot, -e.decimals), nil
}

// Restore re-occupies a slot for a payment that is still live, e.g. after restart.
func (e *Encoder) Restore(address string, effective decimal.Decimal, expiresAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.forAddress(address)
	slot := e.units(effective)
	s.set.Add(slot)
	s.expiry[slot] = expiresAt
}

func (e *Encoder) Release(address string, effective decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.slots[address]
	if !ok {
		return
	}
	slot := e.units(effective)
	s.set.Remove(slot)
	delete(s.expiry, slot)
	if s.set.Len() == 0 {
		delete(e.slots, address)
	}
}

// Active returns the number of reserved slots on address.
func (e *Encoder) Active(address string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.slots[address]; ok {
		return s.set.Len()
	}
	return 0
}
