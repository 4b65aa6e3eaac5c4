package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"mathtutor_go_backend/internal/auth"
	apperrors "mathtutor_go_backend/internal/errors"
	"mathtutor_go_backend/internal/models"
	"mathtutor_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	turnTypeText  = "text"
	turnTypeImage = "image"
)

type agentMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type agentRequest struct {
	Prompt    string         `json:"prompt"`
	Messages  []agentMessage `json:"messages"`
	Type      string         `json:"type"`
	ImageLink string         `json:"imageLink"`
	ChatID    string         `json:"chatId"`
}

type quizRequest struct {
	Topic      string `json:"topic"`
	Complexity string `json:"complexity"`
}

type roadmapRequest struct {
	Days  flexInt `json:"days"`
	Topic string  `json:"topic"`
}

type createChatRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// flexInt accepts both 7 and "7"; form selects post numbers as strings.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

func getCreditsHandler(ledger services.CreditLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.MustUserID(c)
		if !ok {
			return
		}
		credits, err := ledger.Read(c.Request.Context(), userID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"credits": credits})
	}
}

func getUserDetailsHandler(users services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.MustUserID(c)
		if !ok {
			return
		}
		details, err := users.Details(c.Request.Context(), userID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, details)
	}
}

func getAgentStatsHandler(metered *services.MeteredService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.MustUserID(c)
		if !ok {
			return
		}
		stats, err := metered.DashboardStats(c.Request.Context(), userID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"chatHistory": stats.ChatTurns,
			"roadmap":     stats.Roadmaps,
		})
	}
}

func agentHandler(metered *services.MeteredService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.MustUserID(c)
		if !ok {
			return
		}
		var req agentRequest
		if err := decodeJSON(c, &req); err != nil {
			apperrors.HandleError(c, err)
			return
		}

		var op services.MeteredOperation
		switch strings.ToLower(strings.TrimSpace(req.Type)) {
		case "", turnTypeText:
			op = services.TutorTextOperation(userID, req.Prompt, toTurns(req.Messages))
		case turnTypeImage:
			op = services.TutorImageOperation(userID, req.Prompt, req.ImageLink)
		default:
			apperrors.HandleError(c, apperrors.New400Error("type must be text or image"))
			return
		}
		if req.ChatID != "" {
			chatID, err := uuid.Parse(req.ChatID)
			if err != nil {
				apperrors.HandleError(c, apperrors.New400Error("invalid chatId"))
				return
			}
			op.History.ChatID = chatID
		}

		result, err := metered.Run(c.Request.Context(), userID, op)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":    result.Generation.ID,
			"model": result.Generation.Model,
			"choices": []gin.H{{
				"index": 0,
				"message": gin.H{
					"role":    services.RoleAssistant,
					"content": result.Generation.Content,
				},
			}},
			"chatId":     result.ChatID,
			"checkCount": result.Balance,
		})
	}
}

func quizHandler(metered *services.MeteredService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.MustUserID(c)
		if !ok {
			return
		}
		var req quizRequest
		if err := decodeJSON(c, &req); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		result, err := metered.Run(c.Request.Context(), userID, services.QuizOperation(req.Topic, req.Complexity))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"quizData": result.Generation.Content,
			"credits":  result.Balance,
		})
	}
}

func roadmapHandler(metered *services.MeteredService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.MustUserID(c)
		if !ok {
			return
		}
		var req roadmapRequest
		if err := decodeJSON(c, &req); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		result, err := metered.Run(c.Request.Context(), userID, services.RoadmapOperation(req.Topic, int(req.Days)))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"roadmap": result.Generation.Content,
			"credits": result.Balance,
		})
	}
}

func listChatsHandler(chats services.ChatServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.MustUserID(c)
		if !ok {
			return
		}
		list, err := chats.ListChats(c.Request.Context(), userID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "chats": list})
	}
}

func createChatHandler(chats services.ChatServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.MustUserID(c)
		if !ok {
			return
		}
		var req createChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("name is required"))
			return
		}
		chat, err := chats.CreateChat(c.Request.Context(), userID, req.Name, req.Description)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "chat": chat})
	}
}

func listMessagesHandler(chats services.ChatServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.MustUserID(c)
		if !ok {
			return
		}
		chatID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, services.ErrChatNotFound)
			return
		}
		messages, err := chats.ListMessages(c.Request.Context(), userID, chatID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		if messages == nil {
			messages = []models.Message{}
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "messages": messages})
	}
}

func toTurns(messages []agentMessage) []services.Turn {
	turns := make([]services.Turn, 0, len(messages))
	for _, m := range messages {
		role := services.RoleUser
		if strings.EqualFold(m.Sender, models.SenderAssistant) {
			role = services.RoleAssistant
		}
		turns = append(turns, services.Turn{Role: role, Content: m.Text})
	}
	return turns
}

func decodeJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperrors.New400Error("invalid JSON body")
	}
	return nil
}
