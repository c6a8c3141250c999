package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go-paywatch/payment"
	"go-paywatch/payment/engine"

	"github.com/gin-gonic/gin"
)

// Handler exposes the engine over HTTP. It holds no payment logic of its own.
type Handler struct {
	engine *engine.Engine
	admin  AdminCredentials
	tokens TokenIssuer
	log    *slog.Logger
}

func NewHandler(eng *engine.Engine, admin AdminCredentials, tokens TokenIssuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: eng, admin: admin, tokens: tokens, log: logger}
}

// fail maps an engine error to a status. Customers only see generic text for
// anything that is not their own input.
func (h *Handler) fail(c *gin.Context, err error) {
	status := payment.HTTPStatus(err)
	msg := "Internal error"
	switch payment.CodeOf(err) {
	case payment.CodeAuth:
		msg = "Unauthorized"
	case payment.CodeValidation:
		msg = err.Error()
		var pe *payment.Error
		if errors.As(err, &pe) {
			msg = pe.Message
		}
	case payment.CodeNotFound:
		msg = "Not found"
	case payment.CodeTransient:
		msg = "Payment unavailable, try again"
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "status", status, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": msg})
}

// Webhook receives monitoring service deliveries.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, payment.ValidationError("unreadable body", err))
		return
	}
	res, err := h.engine.HandleWebhook(c.Request.Context(), engine.WebhookRequest{
		Body:      body,
		Signature: c.GetHeader("X-Signature"),
		Timestamp: c.GetHeader("X-Timestamp"),
		Event:     c.GetHeader("X-Event"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"status":            res.Status,
		"already_processed": res.AlreadyProcessed,
	})
}

func (h *Handler) PaymentStatus(c *gin.Context) {
	res, err := h.engine.HandlePoll(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "payment_id": res.PaymentID, "status": res.Status, "final": res.Final})
}

func (h *Handler) Confirm(c *gin.Context) {
	var body struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, payment.ValidationError("invalid request body", err))
		return
	}
	out, err := h.engine.Confirm(c.Request.Context(), c.Param("id"), body.TxHash)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": out.OK, "status": out.Status, "message": out.Message})
}

func (h *Handler) CreatePayment(c *gin.Context) {
	var body struct {
		Network string `json:"network"`
		Token   string `json:"token"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.fail(c, payment.ValidationError("invalid request body", err))
			return
		}
	}
	view, err := h.engine.CreatePayment(c.Request.Context(), c.Param("id"),
		payment.Network(strings.ToLower(body.Network)), payment.Token(strings.ToUpper(body.Token)))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) ViewPayment(c *gin.Context) {
	view, err := h.engine.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
