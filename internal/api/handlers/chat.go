package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facesort/internal/auth"
	"github.com/your-org/facesort/internal/intent"
	"github.com/your-org/facesort/pkg/dto"
)

type IntentExtractor interface {
	Extract(ctx context.Context, ownerID, text string, history []intent.Turn) (intent.Intent, string, error)
}

type ChatHandler struct {
	router    *intent.Router
	extractor IntentExtractor
}

// NewChatHandler builds the chat endpoints. A nil extractor disables free-text
// chat; structured intents still work.
func NewChatHandler(router *intent.Router, extractor IntentExtractor) *ChatHandler {
	return &ChatHandler{router: router, extractor: extractor}
}

func intentStatus(s intent.Status) int {
	switch s {
	case intent.StatusOK:
		return http.StatusOK
	case intent.StatusNotFound:
		return http.StatusNotFound
	case intent.StatusInvalid:
		return http.StatusBadRequest
	case intent.StatusUnsupported:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// Chat interprets a free-text message and executes the action it names.
// The reply is always conversational, so outcomes are reported with 200.
func (h *ChatHandler) Chat(c *gin.Context) {
	if h.extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat is not configured"})
		return
	}
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner := auth.OwnerID(c)

	history := make([]intent.Turn, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, intent.Turn{Role: t.Role, Content: t.Content})
	}

	in, reply, err := h.extractor.Extract(c.Request.Context(), owner, req.Message, history)
	if err != nil {
		slog.Error("intent extraction failed", "owner_id", owner, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "assistant unavailable"})
		return
	}

	resp, err := h.router.Dispatch(c.Request.Context(), owner, in)
	if err != nil {
		respondError(c, err)
		return
	}

	switch resp.Status {
	case intent.StatusOK, intent.StatusUnsupported:
		if reply == "" {
			reply = resp.Message
		}
	default:
		reply = resp.Message
	}

	out := dto.ChatResponse{Reply: reply}
	if resp.Action != intent.ActionUnknown {
		out.Result = resp
	}
	c.JSON(http.StatusOK, out)
}

// Intent executes a structured {"action": ...} command without going through
// the language model.
func (h *ChatHandler) Intent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in, err := intent.Parse(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.router.Dispatch(c.Request.Context(), auth.OwnerID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(intentStatus(resp.Status), resp)
}
