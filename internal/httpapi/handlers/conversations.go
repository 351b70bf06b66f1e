package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cortexhq/cortex-server/internal/common"
)

func (h *Handler) ListConversations(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	convs, err := h.ChatSvc.ListConversations(c.Request.Context(), uid, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list conversations")
		return
	}

	common.OK(c, gin.H{"conversations": convs})
}

func (h *Handler) ListConversationMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	conversationID := c.Param("conversation_id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	var before time.Time
	if v := c.Query("before"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			before = t
		}
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, conversationID, limit, before)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	var nextBefore string
	if len(msgs) > 0 {
		nextBefore = msgs[len(msgs)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	common.OK(c, gin.H{
		"messages":    msgs,
		"next_before": nextBefore,
	})
}
