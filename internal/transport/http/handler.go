package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/greenloop/recycle-wallet/internal/otp"
	"github.com/greenloop/recycle-wallet/internal/payout"
	"github.com/greenloop/recycle-wallet/internal/pricing"
	"github.com/greenloop/recycle-wallet/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler bundles the service dependencies the routes need.
type Handler struct {
	svc     *service.WalletService
	gateway *payout.Client
	otp     *otp.Store
	log     *zap.SugaredLogger
}

func NewHandler(svc *service.WalletService, gateway *payout.Client, otpStore *otp.Store, log *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, gateway: gateway, otp: otpStore, log: log}
}

func (h *Handler) Register(r *gin.Engine) {
	r.POST("/withdraw", h.withdraw)
	r.POST("/b2c", h.b2c)
	r.POST("/b2c/result", h.b2cResult)
	r.POST("/request-completed", h.requestCompleted)
	r.GET("/wallets/:id/balance", h.balance)
	r.GET("/wallets/:id/history", h.history)
	r.POST("/otp/send", h.otpSend)
	r.POST("/otp/verify", h.otpVerify)
}

type withdrawReq struct {
	UserID string          `json:"userId" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (h *Handler) withdraw(c *gin.Context) {
	var req withdrawReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, err := h.svc.Debit(c, req.UserID, req.Amount, service.DebitMeta{})
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// business rejections surface as ledger failures on this route
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type b2cReq struct {
	UserID string          `json:"user_id" binding:"required"`
	Phone  string          `json:"phone" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (h *Handler) b2c(c *gin.Context) {
	var req b2cReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	txID, err := h.svc.Debit(c, req.UserID, req.Amount, service.DebitMeta{
		Pending: true,
		Method:  "B2C",
		Phone:   req.Phone,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// the debit is committed; the gateway call is fire-and-forget. On
	// transport failure the transaction stays pending until a callback or
	// the reconciliation sweep resolves it.
	go func(phone string, amount decimal.Decimal, txID uint64) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := h.gateway.SendB2C(ctx, phone, amount, "wallet withdrawal"); err != nil {
			h.log.Errorf("b2c submit tx=%d: %v", txID, err)
		}
	}(req.Phone, req.Amount, txID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"payout":  gin.H{"transaction_id": txID, "status": "pending"},
	})
}

func (h *Handler) b2cResult(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	res, err := payout.NormalizeResult(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.svc.ResolvePayout(c, res); err != nil {
		if errors.Is(err, payout.ErrMalformedCallback) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, "B2C result processed")
}

type requestCompletedReq struct {
	RequestID string                  `json:"requestId" binding:"required"`
	Before    service.RequestSnapshot `json:"before"`
	After     service.RequestSnapshot `json:"after"`
}

func (h *Handler) requestCompleted(c *gin.Context) {
	var req requestCompletedReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := h.svc.ApplyCompletion(c, req.RequestID, req.Before, req.After)
	if err != nil {
		if errors.Is(err, pricing.ErrPriceNotFound) || errors.Is(err, service.ErrMissingRequestID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	switch outcome.Kind {
	case service.OutcomeAlreadyProcessed:
		c.JSON(http.StatusOK, gin.H{"message": "Already processed"})
	case service.OutcomeNoActionNeeded:
		c.JSON(http.StatusOK, gin.H{"message": "No update needed"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "amount": outcome.Amount})
	}
}

func (h *Handler) balance(c *gin.Context) {
	bal, err := h.svc.GetBalance(c, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal})
}

func (h *Handler) history(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sinceStr := c.DefaultQuery("since", time.Now().Add(-24*time.Hour).Format(time.RFC3339))
	since, err := time.Parse(time.RFC3339, sinceStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}
	txs, err := h.svc.GetHistory(c, c.Param("id"), limit, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, txs)
}

type otpSendReq struct {
	Phone string `json:"phone" binding:"required"`
}

func (h *Handler) otpSend(c *gin.Context) {
	var req otpSendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.otp.Send(c, req.Phone); err != nil {
		if errors.Is(err, otp.ErrTooManyRequests) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type otpVerifyReq struct {
	Phone  string `json:"phone" binding:"required"`
	Code   string `json:"code" binding:"required"`
	UserID string `json:"userId"`
}

func (h *Handler) otpVerify(c *gin.Context) {
	var req otpVerifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ok, err := h.otp.Verify(c, req.Phone, req.Code)
	if err != nil {
		if errors.Is(err, otp.ErrTooManyAttempts) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired code"})
		return
	}
	if req.UserID != "" {
		if err := h.svc.EnsureWallet(c, req.UserID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
