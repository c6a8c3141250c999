package qrcode

import (
	"fmt"

	"go-paywatch/payment"

	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// PaymentURI builds the wallet deep link for a deposit. Token contracts are left to
// the wallet; the amount is what the customer must send.
func PaymentURI(network payment.Network, address string, amount decimal.Decimal) string {
	switch {
	case network == payment.NetworkTron:
		return fmt.Sprintf("tron:%s?amount=%s", address, amount.String())
	case network.EVM():
		return fmt.Sprintf("ethereum:%s?value=%s", address, amount.String())
	}
	return address
}

// PNG renders uri as a QR code image.
func PNG(uri string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(uri, qrcode.Medium, size)
}
