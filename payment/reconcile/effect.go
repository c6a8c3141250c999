package reconcile

import "go-paywatch/payment"

// OrderStatus values follow the store's order lifecycle.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderOnHold     OrderStatus = "on-hold"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Effect is an order-side intent. The set is closed; the projector switches over it.
type Effect interface {
	effect()
}

type RecordPayment struct {
	PaidAmount string
	TxHash     string
}

// MarkTerminal sets the processed_terminal latch.
type MarkTerminal struct{}

type SetPaymentStatus struct {
	Status payment.Status
}

type SetOrderStatus struct {
	Status OrderStatus
}

// ReduceStock deducts line quantities once per order.
type ReduceStock struct{}

// RestoreStock returns previously reduced stock.
type RestoreStock struct{}

type Annotate struct {
	Note string
}

func (RecordPayment) effect()    {}
func (MarkTerminal) effect()     {}
func (SetPaymentStatus) effect() {}
func (SetOrderStatus) effect()   {}
func (ReduceStock) effect()      {}
func (RestoreStock) effect()     {}
func (Annotate) effect()         {}
