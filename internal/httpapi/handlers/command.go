package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cortexhq/cortex-server/internal/ai"
	"github.com/cortexhq/cortex-server/internal/chat"
	"github.com/cortexhq/cortex-server/internal/common"
)

type historyItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type commandReq struct {
	Message             string        `json:"message"`
	UserID              string        `json:"userId"`
	ConversationID      string        `json:"conversationId"`
	IsVoice             bool          `json:"isVoice"`
	ConversationHistory []historyItem `json:"conversationHistory"`
}

type commandEmbeddings struct {
	UserMessage       []float32 `json:"userMessage"`
	AssistantResponse []float32 `json:"assistantResponse"` // null when the reply embedding failed
}

func (r commandReq) toCommand() chat.CommandRequest {
	cmd := chat.CommandRequest{
		UserID:         r.UserID,
		ConversationID: r.ConversationID,
		Message:        r.Message,
		IsVoice:        r.IsVoice,
	}
	if r.ConversationHistory != nil {
		hist := make([]ai.Message, 0, len(r.ConversationHistory))
		for _, h := range r.ConversationHistory {
			hist = append(hist, ai.Message{Role: h.Role, Content: h.Content})
		}
		cmd.History = hist
	}
	return cmd
}

func commandError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"success":   false,
		"error":     err.Error(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleCommand is the voice/text command entry point. The caller always
// receives a well-formed JSON envelope with a success flag, never a raw
// fault.
func (h *Handler) HandleCommand(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		commandError(c, &chat.ValidationError{Reason: "invalid json body"})
		return
	}

	res, err := h.ChatSvc.HandleCommand(c.Request.Context(), req.toCommand())
	if err != nil {
		h.Log.Warnw("command failed", "user_id", req.UserID, "err", err)
		commandError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"response":       res.Reply,
		"conversationId": res.ConversationID,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"embeddings": commandEmbeddings{
			UserMessage:       res.UserEmbedding,
			AssistantResponse: res.ReplyEmbedding,
		},
	})
}

// HandleCommandStream runs the same pipeline over SSE.
func (h *Handler) HandleCommandStream(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		commandError(c, &chat.ValidationError{Reason: "invalid json body"})
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	chunks, results, errs := h.ChatSvc.HandleCommandStream(ctx, req.toCommand())

	// heartbeat ticker keeps proxies from closing the connection
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	for {
		select {
		case ch, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			writeJSON("chunk", gin.H{
				"type":  "chunk",
				"delta": ch,
			})

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case err := <-errs:
			if err == nil {
				continue
			}
			h.Log.Warnw("stream command failed", "user_id", req.UserID, "err", err)
			writeJSON("error", gin.H{
				"type":    "error",
				"message": err.Error(),
			})
			return

		case res, ok := <-results:
			if !ok || res == nil {
				continue
			}
			writeJSON("done", gin.H{
				"type":           "done",
				"conversationId": res.ConversationID,
				"message_id":     res.ReplyMessageID,
			})
			return

		case <-ctx.Done():
			return
		}
	}
}

// HandleCommandAsync enqueues the command as a job and returns its id.
func (h *Handler) HandleCommandAsync(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.UserID) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "message and userId required")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	jobID, err := common.NewULID()
	if err != nil {
		h.Log.Errorw("ulid generation failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &chat.Job{
		ID:             jobID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		IsVoice:        req.IsVoice,
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}

	job, created, err := h.ChatSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		h.Log.Errorw("create job failed", "user_id", req.UserID, "job_id", jobID, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	j = job

	// enqueue only when a new job row was created
	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
			h.Log.Errorw("publish job failed", "user_id", req.UserID, "job_id", j.ID, "err", err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetCommandJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}
	userID := c.Query("userId")
	if userID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "userId required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != userID {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"conversation_id":   j.ConversationID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
