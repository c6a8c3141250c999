package controllers

import (
	"net/http"

	"go-paywatch/payment"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type AdminCredentials struct {
	User         string
	PasswordHash string // bcrypt
}

type TokenIssuer interface {
	IssueToken(subject string) (string, error)
}

func (h *Handler) Login(c *gin.Context) {
	var body struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}
	if c.ShouldBindJSON(&body) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if h.admin.PasswordHash == "" || body.User != h.admin.User {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user or password"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(body.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user or password"})
		return
	}

	token, err := h.tokens.IssueToken(body.User)
	if err != nil {
		h.log.Error("issue token", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// CancelPayment is the operator's manual close of an open payment.
func (h *Handler) CancelPayment(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.fail(c, payment.ValidationError("invalid request body", err))
			return
		}
	}
	res, err := h.engine.Cancel(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("payment cancelled by operator", "operator", c.GetString("operator"), "payment_id", res.PaymentID)
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"status":       res.Status,
		"order_status": res.OrderStatus,
		"changed":      res.Changed,
	})
}
