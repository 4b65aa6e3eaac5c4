package api

import (
	"io"
	"net/http"

	"mathtutor_go_backend/internal/auth"
	apperrors "mathtutor_go_backend/internal/errors"
	"mathtutor_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxWebhookBodyBytes = int64(65536)

type checkoutRequest struct {
	PlanID string `json:"planId" binding:"required"`
}

type paymentRequest struct {
	Amount int64 `json:"amount"`
}

func checkoutHandler(billing *services.BillingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.MustUserID(c)
		if !ok {
			return
		}
		var req checkoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("planId is required"))
			return
		}
		result, err := billing.Checkout(c.Request.Context(), userID, req.PlanID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func cancelSubscriptionHandler(billing *services.BillingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.MustUserID(c)
		if !ok {
			return
		}
		if err := billing.Cancel(c.Request.Context(), userID); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Subscription canceled"})
	}
}

func paymentHandler(billing *services.BillingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("amount must be a number"))
			return
		}
		url, err := billing.Donate(c.Request.Context(), req.Amount)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"paymentUrl": url})
	}
}

func stripeWebhookHandler(billing *services.BillingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("Error reading webhook body")
			apperrors.HandleError(c, apperrors.New400Error("Error reading request body"))
			return
		}

		if err := billing.HandleEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
