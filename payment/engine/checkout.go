package engine

import (
	"context"
	"fmt"
	"time"

	"go-paywatch/payment"
	"go-paywatch/payment/monitor"
	"go-paywatch/payment/qrcode"
	"go-paywatch/payment/reconcile"
)

// PaymentView is everything a checkout page needs to show. It carries data, not markup.
type PaymentView struct {
	PaymentID       string         `json:"payment_id"`
	OrderID         string         `json:"order_id"`
	Network         string         `json:"network"`
	Token           string         `json:"token"`
	Address         string         `json:"address"`
	Amount          string         `json:"amount"`
	RequestedAmount string         `json:"requested_amount"`
	ExpiresAt       time.Time      `json:"expires_at"`
	Status          payment.Status `json:"status"`
	PaymentURI      string         `json:"payment_uri"`
	QRCode          []byte         `json:"qr_code,omitempty"` // PNG
	CanConfirm      bool           `json:"can_confirm"`
	RequiresTxID    bool           `json:"requires_txid"`
}

func (e *Engine) view(p payment.Request) (PaymentView, error) {
	uri := qrcode.PaymentURI(p.Network, p.Address, p.EffectiveAmount)
	v := PaymentView{
		PaymentID:       p.ID,
		OrderID:         p.OrderRef,
		Network:         string(p.Network),
		Token:           string(p.Token),
		Address:         p.Address,
		Amount:          p.EffectiveAmount.String(),
		RequestedAmount: p.RequestedAmount.String(),
		ExpiresAt:       p.ExpiresAt,
		Status:          p.Status,
		PaymentURI:      uri,
		CanConfirm:      e.cfg.StaticWallet && p.ConfirmURL != "" && p.Status.Open(),
		RequiresTxID:    p.RequiresTxID,
	}
	if p.Status.Open() {
		png, err := qrcode.PNG(uri, qrcode.DefaultSize)
		if err != nil {
			return PaymentView{}, fmt.Errorf("render qr code: %w", err)
		}
		v.QRCode = png
	}
	return v, nil
}

// View returns the checkout view of a stored payment.
func (e *Engine) View(ctx context.Context, paymentID string) (PaymentView, error) {
	p, err := e.store.Payment(ctx, paymentID)
	if err != nil {
		return PaymentView{}, err
	}
	return e.view(p)
}

// CreatePayment opens a payment request for an order. An order that already has a
// live request gets that one back.
func (e *Engine) CreatePayment(ctx context.Context, orderID string, network payment.Network, token payment.Token) (PaymentView, error) {
	if network == "" {
		network = e.cfg.DefaultNetwork
	}
	if token == "" {
		token = e.cfg.DefaultToken
	}
	if !network.Valid() || !token.Valid() {
		return PaymentView{}, payment.ValidationError(fmt.Sprintf("unsupported network %q or token %q", network, token), nil)
	}
	logger := e.log.With("request_id", RequestID(ctx), "order_id", orderID)

	now := e.now()
	if existing, ok, err := e.store.OpenPaymentForOrder(ctx, orderID, now); err != nil {
		return PaymentView{}, err
	} else if ok {
		return e.view(existing)
	}

	o, err := e.store.Order(ctx, orderID)
	if err != nil {
		return PaymentView{}, err
	}
	switch reconcile.OrderStatus(o.Status) {
	case reconcile.OrderPending, reconcile.OrderOnHold:
	default:
		return PaymentView{}, payment.ValidationError(fmt.Sprintf("order %s is %s and cannot be paid", orderID, o.Status), nil)
	}

	currency := o.Currency
	if currency == "" {
		currency = e.cfg.StoreCurrency
	}
	converted, err := e.rates.Convert(ctx, o.Total, currency, string(token))
	if err != nil {
		return PaymentView{}, err
	}
	requested := converted.RoundUp(e.cfg.TokenDecimals)
	if !requested.IsPositive() {
		return PaymentView{}, payment.ValidationError(fmt.Sprintf("order %s has nothing to pay", orderID), nil)
	}

	expiresAt := now.Add(e.cfg.PaymentTimeout)
	effective := requested
	mreq := monitor.CreateRequest{
		OrderRef:  orderID,
		Network:   network,
		Token:     token,
		Amount:    requested,
		ExpiresIn: int64(e.cfg.PaymentTimeout / time.Second),
	}
	if e.cfg.StaticWallet {
		effective, err = e.encoder.Encode(e.cfg.StaticAddress, requested, expiresAt)
		if err != nil {
			logger.Warn("no free amount slot", "requested", requested.String(), "err", err)
			return PaymentView{}, err
		}
		mreq.Amount = effective
		mreq.Address = e.cfg.StaticAddress
	}
	release := func() {
		if e.cfg.StaticWallet {
			e.encoder.Release(e.cfg.StaticAddress, effective)
		}
	}

	resp, err := e.monitor.Create(ctx, mreq)
	if err != nil {
		release()
		logger.Warn("monitoring service refused payment", "code", payment.CodeOf(err), "err", err)
		return PaymentView{}, err
	}

	if !e.cfg.StaticWallet && resp.Amount.IsPositive() {
		effective = resp.Amount
	}
	if e.cfg.StaticWallet && !resp.Amount.IsZero() && !resp.Amount.Equal(effective) {
		logger.Warn("monitoring service echoed a different amount", "sent", effective.String(), "got", resp.Amount.String())
	}
	if !resp.ExpiresAt.IsZero() {
		expiresAt = resp.ExpiresAt
		if e.cfg.StaticWallet {
			e.encoder.Restore(e.cfg.StaticAddress, effective, expiresAt)
		}
	}

	address := resp.Address
	if e.cfg.StaticWallet {
		address = e.cfg.StaticAddress
	}
	req := payment.Request{
		ID:              resp.PaymentID,
		OrderRef:        orderID,
		Network:         network,
		Token:           token,
		Address:         address,
		RequestedAmount: requested,
		EffectiveAmount: effective,
		ExpiresAt:       expiresAt,
		Status:          payment.StatusPending,
		ConfirmURL:      resp.ConfirmURL,
		RequiresTxID:    resp.RequiresTxID,
	}
	superseded, err := e.store.CreatePayment(ctx, req, e.audit(ctx, payment.SourceCheckout))
	if err != nil {
		release()
		logger.Error("payment created remotely but not stored", "payment_id", resp.PaymentID, "err", err)
		return PaymentView{}, err
	}
	for _, old := range superseded {
		if e.cfg.StaticWallet && old.Address == e.cfg.StaticAddress {
			e.encoder.Release(old.Address, old.EffectiveAmount)
		}
		logger.Info("payment superseded", "payment_id", old.ID, "by", req.ID)
	}
	logger.Info("payment created", "payment_id", req.ID, "amount", effective.String(), "token", token, "network", network)
	return e.view(req)
}

// Confirm forwards a customer's transaction hash to the monitoring service. It only
// speeds up detection; the payment changes state when the service reports back.
func (e *Engine) Confirm(ctx context.Context, paymentID, txid string) (monitor.ConfirmResponse, error) {
	if !e.cfg.StaticWallet {
		return monitor.ConfirmResponse{}, payment.ValidationError("manual confirmation is only available for static wallet payments", nil)
	}
	txid, err := monitor.ValidateTxID(txid)
	if err != nil {
		return monitor.ConfirmResponse{}, err
	}
	p, err := e.store.Payment(ctx, paymentID)
	if err != nil {
		return monitor.ConfirmResponse{}, err
	}
	if !p.Status.Open() {
		return monitor.ConfirmResponse{}, payment.ValidationError(fmt.Sprintf("payment %s is %s", paymentID, p.Status), nil)
	}
	if p.ConfirmURL == "" {
		return monitor.ConfirmResponse{}, payment.ValidationError("payment has no confirmation endpoint", nil)
	}
	out, err := e.monitor.Confirm(ctx, p.ConfirmURL, p.ID, txid)
	if err != nil {
		e.log.Warn("confirmation not forwarded", "request_id", RequestID(ctx), "payment_id", paymentID, "code", payment.CodeOf(err), "err", err)
		return monitor.ConfirmResponse{}, err
	}
	e.log.Info("confirmation forwarded", "request_id", RequestID(ctx), "payment_id", paymentID, "tx_hash", txid)
	return out, nil
}
