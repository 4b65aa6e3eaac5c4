package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mathtutor_go_backend/internal/api"
	"mathtutor_go_backend/internal/auth"
	"mathtutor_go_backend/internal/database/dbtest"
	"mathtutor_go_backend/internal/models"
	"mathtutor_go_backend/internal/ratelimit"
	"mathtutor_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookSecret = "whsec_api_test"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGenerator struct {
	fail     bool
	requests []services.GenerationRequest
}

func (g *stubGenerator) Generate(ctx context.Context, req services.GenerationRequest) (*services.Generation, error) {
	g.requests = append(g.requests, req)
	if g.fail {
		return nil, &services.UpstreamError{Service: "generator", Err: errors.New("provider down")}
	}
	return &services.Generation{ID: "gen-1", Model: "tutor-model", Content: "worked solution"}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, RetryAfter: 2 * time.Second}, nil
}

type apiFixture struct {
	router    *gin.Engine
	users     *services.DefaultUserService
	tokens    *auth.TokenManager
	generator *stubGenerator
	user      *models.User
	token     string
}

func newAPIFixture(t *testing.T, limiter ratelimit.Limiter) *apiFixture {
	t.Helper()
	db := dbtest.Open(t)
	ledger := services.NewCreditLedger(db)
	users := services.NewUserService(db, ledger)
	chats := services.NewChatServiceDB(db)
	generator := &stubGenerator{}
	tokens := auth.NewTokenManager("api-test-secret", auth.DefaultTokenTTL)
	prices := services.PriceTable{Basic: "price_basic", Gold: "price_gold", Premium: "price_premium"}
	provider := services.NewStripeService("sk_test_unused", webhookSecret, "https://tutor.example.com")

	router := gin.New()
	router.Use(api.RequestLogger(zerolog.Nop()))
	api.SetupRoutes(router, api.Deps{
		Tokens:       tokens,
		Ledger:       ledger,
		Users:        users,
		Chats:        chats,
		Metered:      services.NewMeteredService(ledger, chats, users, generator, services.MeteredServiceConfig{RequirePositiveBalance: true}),
		Billing:      services.NewBillingService(provider, ledger, users, prices),
		Limiter:      limiter,
		RateCapacity: 20,
	})

	user, err := users.Register(context.Background(), services.RegisterInput{
		Email: "learner@example.com", FirstName: "L", Password: "password1",
	})
	require.NoError(t, err)
	token, err := tokens.Issue(user.ID)
	require.NoError(t, err)

	return &apiFixture{router: router, users: users, tokens: tokens, generator: generator, user: user, token: token}
}

func (f *apiFixture) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) authed(method, path string, body interface{}) *httptest.ResponseRecorder {
	return f.do(method, path, body, map[string]string{"Authorization": "Bearer " + f.token})
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type agentResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	CheckCount int64 `json:"checkCount"`
}

func (f *apiFixture) credits(t *testing.T) int64 {
	t.Helper()
	w := f.authed(http.MethodGet, "/api/users/credits", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Credits int64 `json:"credits"`
	}
	decode(t, w, &body)
	return body.Credits
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMeteredRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t, nil)
	other := auth.NewTokenManager("some-other-secret", auth.DefaultTokenTTL)
	forged, err := other.Issue(f.user.ID)
	require.NoError(t, err)

	for _, path := range []string{"/api/users/agent", "/api/users/quiz", "/api/users/roadmap"} {
		w := f.do(http.MethodPost, path, gin.H{"prompt": "hi", "topic": "sets", "days": 3}, nil)
		var body errorBody
		decode(t, w, &body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHORIZED", body.Error.Type)

		w = f.do(http.MethodPost, path, gin.H{"prompt": "hi"}, map[string]string{"Authorization": "Bearer " + forged})
		decode(t, w, &body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_TOKEN", body.Error.Type)
	}
	assert.Empty(t, f.generator.requests)
	assert.Equal(t, int64(50), f.credits(t))
}

func TestTutoringScenario(t *testing.T) {
	f := newAPIFixture(t, nil)
	assert.Equal(t, int64(50), f.credits(t))

	for i := 0; i < 10; i++ {
		w := f.authed(http.MethodPost, "/api/users/agent", gin.H{
			"prompt":   fmt.Sprintf("step %d", i),
			"messages": []gin.H{{"sender": "User", "text": "hi"}, {"sender": "Assistant", "text": "hello"}},
			"type":     "text",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var body agentResponse
		decode(t, w, &body)
		assert.Equal(t, int64(49-i), body.CheckCount)
		require.Len(t, body.Choices, 1)
		assert.Equal(t, "assistant", body.Choices[0].Message.Role)
	}
	assert.Equal(t, int64(40), f.credits(t))
	assert.Equal(t, []services.Turn{
		{Role: services.RoleUser, Content: "hi"},
		{Role: services.RoleAssistant, Content: "hello"},
	}, f.generator.requests[0].History)

	w := f.authed(http.MethodPost, "/api/users/agent", gin.H{
		"messages":  []gin.H{},
		"type":      "image",
		"imageLink": "https://img.example.com/triangle.png",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	last := f.generator.requests[len(f.generator.requests)-1]
	assert.True(t, last.Vision)
	assert.Empty(t, last.History)
	assert.Equal(t, int64(38), f.credits(t))

	w = f.authed(http.MethodGet, "/api/users/agent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		ChatHistory int64 `json:"chatHistory"`
		Roadmap     int64 `json:"roadmap"`
	}
	decode(t, w, &stats)
	assert.Equal(t, int64(22), stats.ChatHistory)
	assert.Equal(t, int64(0), stats.Roadmap)

	w = f.authed(http.MethodPost, "/api/users/roadmap", gin.H{"days": "3", "topic": "geometry"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var roadmap struct {
		Roadmap string `json:"roadmap"`
		Credits int64  `json:"credits"`
	}
	decode(t, w, &roadmap)
	assert.Equal(t, int64(36), roadmap.Credits)
	assert.NotEmpty(t, roadmap.Roadmap)

	w = f.authed(http.MethodPost, "/api/users/quiz", gin.H{"topic": "fractions", "complexity": "Easy"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var quiz struct {
		QuizData string `json:"quizData"`
		Credits  int64  `json:"credits"`
	}
	decode(t, w, &quiz)
	assert.Equal(t, int64(34), quiz.Credits)

	w = f.authed(http.MethodGet, "/api/users/agent", nil)
	decode(t, w, &stats)
	assert.Equal(t, int64(1), stats.Roadmap)
}

func TestAgentTranscriptEndingWithPrompt(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.authed(http.MethodPost, "/api/users/agent", gin.H{
		"prompt": "solve 2x+4=0",
		"messages": []gin.H{
			{"sender": "User", "text": "what is 2+2"},
			{"sender": "Assistant", "text": "4"},
			{"sender": "User", "text": "solve 2x+4=0"},
		},
		"type": "text",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, f.generator.requests, 1)
	req := f.generator.requests[0]
	assert.Equal(t, "solve 2x+4=0", req.Prompt)
	assert.Equal(t, []services.Turn{
		{Role: services.RoleUser, Content: "what is 2+2"},
		{Role: services.RoleAssistant, Content: "4"},
	}, req.History)
}

func TestMeteredFailures(t *testing.T) {
	f := newAPIFixture(t, nil)

	t.Run("Missing fields", func(t *testing.T) {
		w := f.authed(http.MethodPost, "/api/users/quiz", gin.H{"complexity": "Easy"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = f.authed(http.MethodPost, "/api/users/roadmap", gin.H{"topic": "sets"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = f.authed(http.MethodPost, "/api/users/agent", gin.H{"prompt": "hi", "type": "video"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = f.authed(http.MethodPost, "/api/users/agent", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Upstream failure charges nothing", func(t *testing.T) {
		f.generator.fail = true
		defer func() { f.generator.fail = false }()

		w := f.authed(http.MethodPost, "/api/users/quiz", gin.H{"topic": "fractions"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var body errorBody
		decode(t, w, &body)
		assert.Equal(t, "UPSTREAM_FAILURE", body.Error.Type)
		assert.NotContains(t, body.Error.Message, "provider down")
	})

	assert.Equal(t, int64(50), f.credits(t))
}

func TestRateLimitedMeteredRoutes(t *testing.T) {
	f := newAPIFixture(t, denyLimiter{})

	w := f.authed(http.MethodPost, "/api/users/agent", gin.H{"prompt": "hi"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Empty(t, f.generator.requests)

	// Reads are not throttled.
	assert.Equal(t, int64(50), f.credits(t))
}

func TestChatRoutes(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.authed(http.MethodPost, "/api/users/chat", gin.H{"name": "Algebra", "description": "linear equations"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Chat models.Chat `json:"chat"`
	}
	decode(t, w, &created)

	w = f.authed(http.MethodPost, "/api/users/agent", gin.H{"prompt": "solve 2x=4", "chatId": created.Chat.ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.authed(http.MethodGet, "/api/users/chat/"+created.Chat.ID.String()+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, w, &listed)
	require.Len(t, listed.Messages, 2)
	assert.Equal(t, models.SenderUser, listed.Messages[0].Sender)

	w = f.authed(http.MethodGet, "/api/users/chat/"+uuid.NewString()+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.authed(http.MethodGet, "/api/users/chat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var chats struct {
		Chats []models.Chat `json:"chats"`
	}
	decode(t, w, &chats)
	assert.Len(t, chats.Chats, 1)
}

func invoicePayload(eventID, email, priceID string) string {
	return fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "type": "invoice.payment_succeeded",
  "data": {"object": {
    "id": "in_1", "object": "invoice",
    "customer": "cus_learner", "customer_email": %q, "subscription": "sub_learner",
    "lines": {"object": "list", "data": [{"id": "il_1", "object": "line_item", "price": {"id": %q, "object": "price"}}]}
  }}
}`, eventID, email, priceID)
}

func (f *apiFixture) deliver(payload string) *httptest.ResponseRecorder {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(payload), Secret: webhookSecret})
	return f.do(http.MethodPost, "/api/stripe/webhook", payload, map[string]string{"Stripe-Signature": signed.Header})
}

func TestStripeWebhook(t *testing.T) {
	f := newAPIFixture(t, nil)
	payload := invoicePayload("evt_gold_1", f.user.Email, "price_gold")

	w := f.deliver(payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(170), f.credits(t))

	w = f.authed(http.MethodGet, "/api/users/userdetails", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details services.UserDetails
	decode(t, w, &details)
	assert.Equal(t, models.PlanGold, details.Plan)

	// Redelivery of the same event is acknowledged without a second top-up.
	w = f.deliver(payload)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(170), f.credits(t))

	w = f.deliver(invoicePayload("evt_unknown", "nobody@example.com", "price_gold"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/stripe/webhook", payload, map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	decode(t, w, &body)
	assert.Equal(t, "SIGNATURE_FAILURE", body.Error.Type)
	assert.Equal(t, int64(170), f.credits(t))
}

func TestStripeRoutesValidation(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(http.MethodPost, "/api/stripe/checkout", gin.H{"planId": "gold"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.authed(http.MethodPost, "/api/stripe/checkout", gin.H{"planId": "diamond"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.authed(http.MethodDelete, "/api/stripe/checkout", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/stripe/payment", gin.H{"amount": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
