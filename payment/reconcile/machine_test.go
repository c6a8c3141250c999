package reconcile

import (
	"testing"
	"time"

	"go-paywatch/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(status payment.Status) payment.Request {
	return payment.Request{
		ID:              "pay_1",
		OrderRef:        "1042",
		Network:         payment.NetworkTron,
		Token:           payment.TokenUSDT,
		Address:         "TQehEHqevPkudydohYrjJxDwdBkAgFUebw",
		RequestedAmount: decimal.RequireFromString("50.00"),
		EffectiveAmount: decimal.RequireFromString("50.000001"),
		ExpiresAt:       time.Now().Add(time.Hour),
		Status:          status,
	}
}

func inbound(kind payment.Kind, paid string) payment.InboundEvent {
	return payment.InboundEvent{
		Kind:       kind,
		RawName:    kind.String(),
		PaymentID:  "pay_1",
		PaidAmount: paid,
		TxHash:     "0xdeadbeef01",
		Source:     payment.SourceWebhook,
	}
}

func has[T Effect](effects []Effect) bool {
	for _, e := range effects {
		if _, ok := e.(T); ok {
			return true
		}
	}
	return false
}

func orderStatuses(effects []Effect) []OrderStatus {
	var out []OrderStatus
	for _, e := range effects {
		if s, ok := e.(SetOrderStatus); ok {
			out = append(out, s.Status)
		}
	}
	return out
}

func notes(effects []Effect) []string {
	var out []string
	for _, e := range effects {
		if a, ok := e.(Annotate); ok {
			out = append(out, a.Note)
		}
	}
	return out
}

func TestCompletedFromOpenStatuses(t *testing.T) {
	for _, st := range []payment.Status{payment.StatusPending, payment.StatusConfirming, payment.StatusPartial} {
		dec, err := Apply(request(st), OrderSnapshot{Status: OrderOnHold, StockReduced: true}, inbound(payment.KindCompleted, "50.00"))
		require.NoError(t, err, st)

		assert.Equal(t, payment.StatusPaid, dec.Next, st)
		assert.True(t, has[MarkTerminal](dec.Effects), st)
		assert.True(t, has[RecordPayment](dec.Effects), st)
		assert.False(t, has[RestoreStock](dec.Effects), st)
		assert.False(t, has[ReduceStock](dec.Effects), "stock was already reduced")
		assert.Equal(t, []OrderStatus{OrderProcessing}, orderStatuses(dec.Effects))
		assert.True(t, dec.Release)
		require.Len(t, notes(dec.Effects), 1)
		assert.Contains(t, notes(dec.Effects)[0], "50.00 USDT")
	}
}

func TestCompletedVirtualOrderCompletes(t *testing.T) {
	dec, err := Apply(request(payment.StatusPending), OrderSnapshot{AllVirtual: true}, inbound(payment.KindCompleted, "50"))
	require.NoError(t, err)

	assert.Equal(t, []OrderStatus{OrderProcessing, OrderCompleted}, orderStatuses(dec.Effects))
	assert.True(t, has[ReduceStock](dec.Effects))
}

func TestOverpaidAnnotatesExcess(t *testing.T) {
	dec, err := Apply(request(payment.StatusPending), OrderSnapshot{StockReduced: true}, inbound(payment.KindOverpaid, "55.5"))
	require.NoError(t, err)

	assert.Equal(t, payment.StatusOverpaid, dec.Next)
	assert.True(t, has[MarkTerminal](dec.Effects))
	require.Len(t, notes(dec.Effects), 1)
	assert.Contains(t, notes(dec.Effects)[0], "excess 5.5 USDT")
}

func TestTerminalIsIdempotentOnceLatched(t *testing.T) {
	cur := request(payment.StatusPaid)
	cur.ProcessedTerminal = true

	for _, k := range []payment.Kind{payment.KindCompleted, payment.KindOverpaid} {
		dec, err := Apply(cur, OrderSnapshot{Status: OrderProcessing}, inbound(k, "50"))
		require.NoError(t, err)
		assert.True(t, dec.AlreadyProcessed)
		assert.Empty(t, dec.Effects)
		assert.Equal(t, payment.StatusPaid, dec.Next)
		assert.False(t, dec.Release)
	}
}

func TestTieBreakFirstTerminalWins(t *testing.T) {
	cur := request(payment.StatusPending)
	first, err := Apply(cur, OrderSnapshot{}, inbound(payment.KindOverpaid, "60"))
	require.NoError(t, err)
	require.Equal(t, payment.StatusOverpaid, first.Next)

	cur.Status = first.Next
	cur.ProcessedTerminal = true
	second, err := Apply(cur, OrderSnapshot{}, inbound(payment.KindCompleted, "50"))
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, payment.StatusOverpaid, second.Next)
}

func TestPartialKeepsPaymentOpen(t *testing.T) {
	dec, err := Apply(request(payment.StatusPending), OrderSnapshot{Status: OrderPending}, inbound(payment.KindPartial, "20.00"))
	require.NoError(t, err)

	assert.Equal(t, payment.StatusPartial, dec.Next)
	assert.False(t, has[MarkTerminal](dec.Effects))
	assert.False(t, dec.Release)
	assert.Equal(t, []OrderStatus{OrderOnHold}, orderStatuses(dec.Effects))
	assert.Contains(t, notes(dec.Effects)[0], "20.00 of 50.000001 USDT")
}

func TestPartialRedeliveryIsSilent(t *testing.T) {
	cur := request(payment.StatusPartial)
	cur.PaidAmount = "20.00"

	dec, err := Apply(cur, OrderSnapshot{Status: OrderOnHold}, inbound(payment.KindPartial, "20.00"))
	require.NoError(t, err)
	assert.False(t, dec.Changed())

	dec, err = Apply(cur, OrderSnapshot{Status: OrderOnHold}, inbound(payment.KindPartial, "30.00"))
	require.NoError(t, err)
	assert.True(t, dec.Changed())
	assert.Empty(t, orderStatuses(dec.Effects), "order already on-hold")
}

func TestPartialAfterPaidDoesNotRegress(t *testing.T) {
	cur := request(payment.StatusPaid)
	cur.ProcessedTerminal = true

	dec, err := Apply(cur, OrderSnapshot{}, inbound(payment.KindPartial, "20"))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, dec.Next)
	assert.False(t, dec.Changed())
}

func TestExpiredRestoresStockAndCancels(t *testing.T) {
	dec, err := Apply(request(payment.StatusPending), OrderSnapshot{Status: OrderOnHold, StockReduced: true}, inbound(payment.KindExpired, ""))
	require.NoError(t, err)

	assert.Equal(t, payment.StatusExpired, dec.Next)
	assert.True(t, has[RestoreStock](dec.Effects))
	assert.Equal(t, []OrderStatus{OrderCancelled}, orderStatuses(dec.Effects))
	assert.False(t, has[MarkTerminal](dec.Effects))
	assert.True(t, dec.Release)
	assert.Contains(t, notes(dec.Effects)[0], "expired")
}

func TestCancelledHasDistinctNote(t *testing.T) {
	ev := inbound(payment.KindCancelled, "")
	ev.Source = payment.SourceOperator
	dec, err := Apply(request(payment.StatusPartial), OrderSnapshot{}, ev)
	require.NoError(t, err)

	assert.Equal(t, payment.StatusCancelled, dec.Next)
	assert.False(t, has[RestoreStock](dec.Effects), "nothing reserved")
	assert.Contains(t, notes(dec.Effects)[0], "cancelled by the operator")
}

func TestCloseOnFinalIsNoop(t *testing.T) {
	for _, st := range []payment.Status{payment.StatusExpired, payment.StatusCancelled, payment.StatusPaid} {
		dec, err := Apply(request(st), OrderSnapshot{}, inbound(payment.KindExpired, ""))
		require.NoError(t, err)
		assert.False(t, dec.Changed(), st)
		assert.Equal(t, st, dec.Next)
	}
}

func TestLatePaymentOnExpiredOnlyAnnotates(t *testing.T) {
	dec, err := Apply(request(payment.StatusExpired), OrderSnapshot{Status: OrderCancelled}, inbound(payment.KindCompleted, "50"))
	require.NoError(t, err)

	assert.Equal(t, payment.StatusExpired, dec.Next)
	require.Len(t, dec.Effects, 1)
	assert.Contains(t, notes(dec.Effects)[0], "Late completed payment")
}

func TestUnknownOnlyAnnotates(t *testing.T) {
	ev := inbound(payment.KindUnknown, "")
	ev.RawName = "payment.refunded"
	dec, err := Apply(request(payment.StatusPending), OrderSnapshot{}, ev)
	require.NoError(t, err)

	assert.Equal(t, payment.StatusPending, dec.Next)
	require.Len(t, dec.Effects, 1)
	assert.Contains(t, notes(dec.Effects)[0], "payment.refunded")
}

func TestInvalidAmountRejected(t *testing.T) {
	for _, k := range []payment.Kind{payment.KindCompleted, payment.KindPartial} {
		_, err := Apply(request(payment.StatusPending), OrderSnapshot{}, inbound(k, "fifty"))
		assert.True(t, payment.IsCode(err, payment.CodeValidation), k)
	}
	_, err := Apply(request(payment.StatusPending), OrderSnapshot{}, inbound(payment.KindCompleted, "-1"))
	assert.True(t, payment.IsCode(err, payment.CodeValidation))
}

func TestMismatchedPaymentRejected(t *testing.T) {
	ev := inbound(payment.KindCompleted, "50")
	ev.PaymentID = "pay_2"
	_, err := Apply(request(payment.StatusPending), OrderSnapshot{}, ev)
	assert.True(t, payment.IsCode(err, payment.CodeValidation))
}
