package api

import (
	"net/http"

	"mathtutor_go_backend/internal/auth"
	"mathtutor_go_backend/internal/ratelimit"
	"mathtutor_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators of the tutoring and billing routes.
type Deps struct {
	Tokens  *auth.TokenManager
	Ledger  services.CreditLedger
	Users   services.UserService
	Chats   services.ChatServiceDB
	Metered *services.MeteredService
	Billing *services.BillingService

	// Limiter throttles the metered routes per user. Nil disables it.
	Limiter      ratelimit.Limiter
	RateCapacity int
}

func SetupRoutes(r *gin.Engine, d Deps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	requireAuth := auth.Middleware(d.Tokens)
	limit := ratelimit.Middleware(d.Limiter, d.RateCapacity, rateKey)

	users := r.Group("/api/users", requireAuth)
	{
		users.GET("/credits", getCreditsHandler(d.Ledger))
		users.GET("/userdetails", getUserDetailsHandler(d.Users))
		users.GET("/agent", getAgentStatsHandler(d.Metered))
		users.POST("/agent", limit, agentHandler(d.Metered))
		users.POST("/quiz", limit, quizHandler(d.Metered))
		users.POST("/roadmap", limit, roadmapHandler(d.Metered))
		users.GET("/chat", listChatsHandler(d.Chats))
		users.POST("/chat", createChatHandler(d.Chats))
		users.GET("/chat/:id/messages", listMessagesHandler(d.Chats))
	}

	stripe := r.Group("/api/stripe")
	{
		stripe.POST("/checkout", requireAuth, checkoutHandler(d.Billing))
		stripe.DELETE("/checkout", requireAuth, cancelSubscriptionHandler(d.Billing))
		stripe.POST("/payment", paymentHandler(d.Billing))
		stripe.POST("/webhook", stripeWebhookHandler(d.Billing))
	}
}

func rateKey(c *gin.Context) string {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return ""
	}
	return userID.String()
}
