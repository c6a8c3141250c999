// Package order is the gorm-backed order store and the projector that applies
// reconciliation decisions to it.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-paywatch/payment"
	"go-paywatch/payment/db"
	"go-paywatch/payment/reconcile"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Audit identifies who caused a write; it lands on every note.
type Audit struct {
	Source    payment.Source
	RequestID string
}

type Store struct {
	db    *gorm.DB
	locks *keyedMutex
}

func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn, locks: newKeyedMutex()}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func toRequest(p db.Payment) payment.Request {
	return payment.Request{
		ID:                p.ID,
		OrderRef:          p.OrderID,
		Network:           payment.Network(p.Network),
		Token:             payment.Token(p.Token),
		Address:           p.Address,
		RequestedAmount:   p.RequestedAmount,
		EffectiveAmount:   p.EffectiveAmount,
		ExpiresAt:         p.ExpiresAt,
		Status:            payment.Status(p.Status),
		ProcessedTerminal: p.ProcessedTerminal,
		PaidAmount:        p.PaidAmount,
		TxHash:            p.TxHash,
		ConfirmURL:        p.ConfirmURL,
		RequiresTxID:      p.RequiresTxID,
	}
}

func fromRequest(r payment.Request) db.Payment {
	return db.Payment{
		ID:                r.ID,
		OrderID:           r.OrderRef,
		Network:           string(r.Network),
		Token:             string(r.Token),
		Address:           r.Address,
		RequestedAmount:   r.RequestedAmount,
		EffectiveAmount:   r.EffectiveAmount,
		ExpiresAt:         r.ExpiresAt.UTC(),
		Status:            string(r.Status),
		ProcessedTerminal: r.ProcessedTerminal,
		PaidAmount:        r.PaidAmount,
		TxHash:            r.TxHash,
		ConfirmURL:        r.ConfirmURL,
		RequiresTxID:      r.RequiresTxID,
	}
}

func snapshot(o db.Order) reconcile.OrderSnapshot {
	allVirtual := len(o.Items) > 0
	for _, it := range o.Items {
		if !it.Product.Virtual {
			allVirtual = false
			break
		}
	}
	return reconcile.OrderSnapshot{
		Status:       reconcile.OrderStatus(o.Status),
		AllVirtual:   allVirtual,
		StockReduced: o.StockReduced,
	}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return payment.NotFoundError(what)
	}
	return err
}

func (s *Store) CreateOrder(ctx context.Context, o *db.Order) error {
	if o.Status == "" {
		o.Status = string(reconcile.OrderPending)
	}
	return s.db.WithContext(ctx).Create(o).Error
}

func (s *Store) Order(ctx context.Context, id string) (db.Order, error) {
	var o db.Order
	err := s.db.WithContext(ctx).Preload("Items.Product").First(&o, "id = ?", id).Error
	if err != nil {
		return db.Order{}, notFound(err, fmt.Sprintf("order %s", id))
	}
	return o, nil
}

func (s *Store) Payment(ctx context.Context, id string) (payment.Request, error) {
	var p db.Payment
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return payment.Request{}, notFound(err, fmt.Sprintf("payment %s", id))
	}
	return toRequest(p), nil
}

var openStatuses = []string{
	string(payment.StatusPending),
	string(payment.StatusConfirming),
	string(payment.StatusPartial),
}

// OpenPaymentForOrder returns the order's unexpired open payment request, if any.
func (s *Store) OpenPaymentForOrder(ctx context.Context, orderID string, now time.Time) (payment.Request, bool, error) {
	var rows []db.Payment
	res := s.db.WithContext(ctx).
		Where("order_id = ? AND status IN ? AND expires_at > ?", orderID, openStatuses, now.UTC()).
		Order("created_at DESC").
		Limit(1).
		Find(&rows)
	if res.Error != nil {
		return payment.Request{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return payment.Request{}, false, nil
	}
	return toRequest(rows[0]), true, nil
}

// ActivePayments lists open payments whose window has not passed.
func (s *Store) ActivePayments(ctx context.Context, now time.Time) ([]payment.Request, error) {
	return s.findPayments(ctx, "status IN ? AND expires_at > ?", openStatuses, now.UTC())
}

// OpenPayments lists every payment still in an open status, including those whose
// window has passed locally but whose close was never reported.
func (s *Store) OpenPayments(ctx context.Context) ([]payment.Request, error) {
	return s.findPayments(ctx, "status IN ?", openStatuses)
}

func (s *Store) findPayments(ctx context.Context, query string, args ...interface{}) ([]payment.Request, error) {
	var rows []db.Payment
	err := s.db.WithContext(ctx).Where(query, args...).Order("created_at").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]payment.Request, 0, len(rows))
	for _, p := range rows {
		out = append(out, toRequest(p))
	}
	return out, nil
}

func (s *Store) Notes(ctx context.Context, orderID string) ([]db.OrderNote, error) {
	var notes []db.OrderNote
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&notes).Error
	return notes, err
}

// CreatePayment records a new payment request for its order, reserves stock and
// puts the order on hold, all in one transaction. Open requests the order already
// had are superseded: they are marked expired without touching the order, so a late
// close for one of them cannot cancel the order under the new request. The
// superseded requests are returned so their amount slots can be freed.
func (s *Store) CreatePayment(ctx context.Context, req payment.Request, audit Audit) ([]payment.Request, error) {
	unlock := s.locks.Lock("order:" + req.OrderRef)
	defer unlock()

	var superseded []payment.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o db.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items.Product").
			First(&o, "id = ?", req.OrderRef).Error
		if err != nil {
			return notFound(err, fmt.Sprintf("order %s", req.OrderRef))
		}

		var prior []db.Payment
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ? AND status IN ?", req.OrderRef, openStatuses).
			Find(&prior).Error
		if err != nil {
			return err
		}

		row := fromRequest(req)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		p := projection{tx: tx, order: &o, payment: &row, audit: audit}
		for i := range prior {
			old := &prior[i]
			old.Status = string(payment.StatusExpired)
			if err := tx.Save(old).Error; err != nil {
				return err
			}
			superseded = append(superseded, toRequest(*old))
			p.annotate(fmt.Sprintf("Payment %s superseded by %s and closed as expired.", old.ID, req.ID))
		}
		if !o.StockReduced {
			if err := p.reduceStock(); err != nil {
				return err
			}
		}
		p.setOrderStatus(reconcile.OrderOnHold)
		p.annotate(fmt.Sprintf("Awaiting %s %s on %s to %s (payment %s), expires %s.",
			req.EffectiveAmount.String(), req.Token, req.Network, req.Address, req.ID,
			req.ExpiresAt.UTC().Format(time.RFC3339)))
		return p.flush(false)
	})
	if err != nil {
		return nil, err
	}
	return superseded, nil
}
