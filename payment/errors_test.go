package payment_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"go-paywatch/payment"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{payment.AuthError("stale timestamp"), http.StatusUnauthorized},
		{payment.ValidationError("missing payment_id", nil), http.StatusBadRequest},
		{payment.NotFoundError("unknown payment"), http.StatusNotFound},
		{payment.TransientError("monitor timeout", errors.New("deadline")), http.StatusServiceUnavailable},
		{payment.ConfigurationError("secret not set"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, payment.HTTPStatus(c.err), c.err.Error())
	}
}

func TestCodeOfWrapped(t *testing.T) {
	inner := payment.NotFoundError("payment abc")
	wrapped := fmt.Errorf("handle webhook: %w", inner)

	assert.Equal(t, payment.CodeNotFound, payment.CodeOf(wrapped))
	assert.True(t, payment.IsCode(wrapped, payment.CodeNotFound))
	assert.Equal(t, payment.Code(""), payment.CodeOf(errors.New("plain")))
}

func TestStatusClasses(t *testing.T) {
	for _, s := range []payment.Status{payment.StatusPaid, payment.StatusOverpaid, payment.StatusExpired, payment.StatusCancelled} {
		assert.True(t, s.Final(), s)
		assert.False(t, s.Open(), s)
	}
	for _, s := range []payment.Status{payment.StatusPending, payment.StatusConfirming, payment.StatusPartial} {
		assert.False(t, s.Final(), s)
		assert.True(t, s.Open(), s)
	}
	assert.True(t, payment.KindCompleted.Terminal())
	assert.True(t, payment.KindOverpaid.Terminal())
	assert.False(t, payment.KindExpired.Terminal())
}
