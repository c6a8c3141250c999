package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-paywatch/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_1", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"paid","paid_amount":"50.000001","tx_hash":"abc"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-1", time.Second)
	ev, display, err := NewPoller(c).Poll(context.Background(), "pay_1")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, payment.KindCompleted, ev.Kind)
	assert.Equal(t, payment.StatusPaid, display)
	assert.Equal(t, "50.000001", ev.PaidAmount)
	assert.Equal(t, payment.SourcePoll, ev.Source)
}

func TestPollStillPendingProducesNoEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"confirming","paid_amount":"0"}`))
	}))
	defer srv.Close()

	ev, display, err := NewPoller(NewClient(srv.URL, "", time.Second)).Poll(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, payment.StatusConfirming, display)
}

func TestStatusErrorClassification(t *testing.T) {
	cases := []struct {
		code int
		want payment.Code
	}{
		{http.StatusNotFound, payment.CodeNotFound},
		{http.StatusBadGateway, payment.CodeTransient},
		{http.StatusTooManyRequests, payment.CodeTransient},
		{http.StatusUnprocessableEntity, payment.CodeValidation},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(c.code)
			w.Write([]byte(`{"error":"nope"}`))
		}))
		_, err := NewClient(srv.URL, "", time.Second).Status(context.Background(), "pay_1")
		assert.Equal(t, c.want, payment.CodeOf(err), c.code)
		srv.Close()
	}
}

func TestStatusTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(srv.URL, "", 100*time.Millisecond).Status(context.Background(), "pay_1")
	assert.True(t, payment.IsCode(err, payment.CodeTransient))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "50.000001", req["amount"])
		assert.Equal(t, "1042", req["external_order_id"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"payment_id":"pay_9","address":"TQehEHqevPkudydohYrjJxDwdBkAgFUebw","amount":"50.000001",
			"expires_at":"2026-03-01T12:15:00Z","confirm_url":"https://monitor.example/confirm","requires_txid":true}`))
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL, "", time.Second).Create(context.Background(), CreateRequest{
		OrderRef: "1042",
		Network:  payment.NetworkTron,
		Token:    payment.TokenUSDT,
		Amount:   decimal.RequireFromString("50.000001"),
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_9", out.PaymentID)
	assert.True(t, out.RequiresTxID)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC), out.ExpiresAt)
}

func TestCreateIncompleteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"payment_id":""}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Create(context.Background(), CreateRequest{})
	assert.True(t, payment.IsCode(err, payment.CodeTransient))
}

func TestConfirmProxiesToSuppliedEndpoint(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/confirm/pay_1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"status":"confirming"}`))
	}))
	defer srv.Close()

	c := NewClient("http://unused.invalid", "", time.Second)
	out, err := c.Confirm(context.Background(), srv.URL+"/v1/confirm/pay_1", "pay_1", "abcdef0123")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, "abcdef0123", got["tx_hash"])

	_, err = c.Confirm(context.Background(), "ftp://x", "pay_1", "abcdef0123")
	assert.True(t, payment.IsCode(err, payment.CodeValidation))
}

func TestValidateTxID(t *testing.T) {
	ok := []string{"0xabcdef0123", "ABCDEF0123", "0X" + "a1b2c3d4e5f6a7b8c9d0"}
	for _, s := range ok {
		_, err := ValidateTxID(s)
		assert.NoError(t, err, s)
	}
	v, _ := ValidateTxID("  0xdeadbeef0011 ")
	assert.Equal(t, "deadbeef0011", v)

	bad := []string{"", "0x", "abc", "0xabcdefg123", string(make([]byte, 129))}
	long := ""
	for i := 0; i < 129; i++ {
		long += "a"
	}
	bad = append(bad, long)
	for _, s := range bad {
		_, err := ValidateTxID(s)
		assert.True(t, payment.IsCode(err, payment.CodeValidation), s)
	}
}
