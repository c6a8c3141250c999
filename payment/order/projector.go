package order

import (
	"context"
	"fmt"

	"go-paywatch/payment"
	"go-paywatch/payment/db"
	"go-paywatch/payment/reconcile"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DecideFunc computes a decision from the locked payment and order.
type DecideFunc func(cur payment.Request, order reconcile.OrderSnapshot) (reconcile.Decision, error)

type Outcome struct {
	Payment     payment.Request
	OrderStatus reconcile.OrderStatus
	Decision    reconcile.Decision
}

// Reconcile runs decide under the payment's lock and applies the resulting effects in
// one transaction. The processed_terminal latch and the order status commit together
// or not at all. No caller should hold the lock across network calls.
func (s *Store) Reconcile(ctx context.Context, paymentID string, audit Audit, decide DecideFunc) (Outcome, error) {
	var cur db.Payment
	if err := s.db.WithContext(ctx).Select("order_id").First(&cur, "id = ?", paymentID).Error; err != nil {
		return Outcome{}, notFound(err, fmt.Sprintf("payment %s", paymentID))
	}
	// order-scoped so creation and reconciliation of the same order serialise
	unlock := s.locks.Lock("order:" + cur.OrderID)
	defer unlock()

	var out Outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p db.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", paymentID).Error
		if err != nil {
			return notFound(err, fmt.Sprintf("payment %s", paymentID))
		}
		var o db.Order
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items.Product").
			First(&o, "id = ?", p.OrderID).Error
		if err != nil {
			return notFound(err, fmt.Sprintf("order %s", p.OrderID))
		}

		dec, err := decide(toRequest(p), snapshot(o))
		if err != nil {
			return err
		}

		if dec.Changed() {
			proj := projection{tx: tx, order: &o, payment: &p, audit: audit}
			if err := proj.apply(dec.Effects); err != nil {
				return err
			}
			if err := proj.flush(true); err != nil {
				return err
			}
		}

		out = Outcome{
			Payment:     toRequest(p),
			OrderStatus: reconcile.OrderStatus(o.Status),
			Decision:    dec,
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// projection accumulates writes for one order inside a transaction.
type projection struct {
	tx      *gorm.DB
	order   *db.Order
	payment *db.Payment
	audit   Audit
	notes   []string
}

func (p *projection) apply(effects []reconcile.Effect) error {
	for _, eff := range effects {
		switch e := eff.(type) {
		case reconcile.RecordPayment:
			if e.PaidAmount != "" {
				p.payment.PaidAmount = e.PaidAmount
			}
			if e.TxHash != "" {
				p.payment.TxHash = e.TxHash
			}
		case reconcile.MarkTerminal:
			p.payment.ProcessedTerminal = true
		case reconcile.SetPaymentStatus:
			p.payment.Status = string(e.Status)
		case reconcile.SetOrderStatus:
			p.setOrderStatus(e.Status)
		case reconcile.ReduceStock:
			if err := p.reduceStock(); err != nil {
				return err
			}
		case reconcile.RestoreStock:
			if err := p.restoreStock(); err != nil {
				return err
			}
		case reconcile.Annotate:
			p.annotate(e.Note)
		default:
			return fmt.Errorf("unhandled effect %T", eff)
		}
	}
	return nil
}

func (p *projection) annotate(note string) {
	p.notes = append(p.notes, note)
}

func (p *projection) setOrderStatus(status reconcile.OrderStatus) {
	if p.order.Status == string(status) {
		return
	}
	p.annotate(fmt.Sprintf("Order status changed from %s to %s.", p.order.Status, status))
	p.order.Status = string(status)
}

func (p *projection) reduceStock() error {
	if p.order.StockReduced {
		return nil
	}
	if err := p.adjustStock(-1); err != nil {
		return err
	}
	p.order.StockReduced = true
	return nil
}

func (p *projection) restoreStock() error {
	if !p.order.StockReduced {
		return nil
	}
	if err := p.adjustStock(1); err != nil {
		return err
	}
	p.order.StockReduced = false
	return nil
}

func (p *projection) adjustStock(sign int) error {
	changed := 0
	for _, it := range p.order.Items {
		if it.Product.Virtual || !it.Product.ManageStock {
			continue
		}
		err := p.tx.Model(&db.Product{}).
			Where("id = ?", it.ProductID).
			UpdateColumn("stock", gorm.Expr("stock + ?", sign*it.Quantity)).Error
		if err != nil {
			return fmt.Errorf("adjust stock for product %d: %w", it.ProductID, err)
		}
		changed++
	}
	if changed > 0 {
		verb := "reduced"
		if sign > 0 {
			verb = "restored"
		}
		p.annotate(fmt.Sprintf("Stock %s for %d line item(s).", verb, changed))
	}
	return nil
}

// flush writes the payment, the order and the notes. savePayment is false when the
// payment row was just inserted.
func (p *projection) flush(savePayment bool) error {
	if savePayment {
		if err := p.tx.Save(p.payment).Error; err != nil {
			return err
		}
	}
	err := p.tx.Model(&db.Order{}).Where("id = ?", p.order.ID).
		Updates(map[string]interface{}{
			"status":        p.order.Status,
			"stock_reduced": p.order.StockReduced,
		}).Error
	if err != nil {
		return err
	}
	if len(p.notes) == 0 {
		return nil
	}
	rows := make([]db.OrderNote, 0, len(p.notes))
	for _, n := range p.notes {
		rows = append(rows, db.OrderNote{
			OrderID:   p.order.ID,
			PaymentID: p.payment.ID,
			Source:    string(p.audit.Source),
			RequestID: p.audit.RequestID,
			Note:      n,
		})
	}
	return p.tx.Create(&rows).Error
}
