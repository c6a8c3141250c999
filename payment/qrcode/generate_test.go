package qrcode

import (
	"bytes"
	"testing"

	"go-paywatch/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentURI(t *testing.T) {
	amt := decimal.RequireFromString("50.000001")
	assert.Equal(t, "tron:TQehEHqevPkudydohYrjJxDwdBkAgFUebw?amount=50.000001",
		PaymentURI(payment.NetworkTron, "TQehEHqevPkudydohYrjJxDwdBkAgFUebw", amt))
	assert.Equal(t, "ethereum:0xabc?value=50.000001", PaymentURI(payment.NetworkBSC, "0xabc", amt))
	assert.Equal(t, "addr", PaymentURI(payment.Network("doge"), "addr", amt))
}

func TestPNG(t *testing.T) {
	img, err := PNG("tron:T123?amount=1", 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))
}
