package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

const maxCommentLen = 500

type CreateRecordRequest struct {
	UserID    domain.UserID   `json:"userId"`
	MediaURL  string          `json:"mediaUrl"`
	IsLive    bool            `json:"isLive"`
	ChannelID domain.Identity `json:"channelId"`
}

type CommentRequest struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type DeleteRequest struct {
	UserID domain.UserID `json:"userId"`
}

type LikeResponse struct {
	Likes int `json:"likes"`
}

// RecordsHandler serves the live records API on top of a RecordStore.
type RecordsHandler struct {
	Store   core.RecordStore
	Limiter *CommentRateLimiter
}

func NewRecordsHandler(store core.RecordStore, limiter *CommentRateLimiter) *RecordsHandler {
	return &RecordsHandler{Store: store, Limiter: limiter}
}

func (h *RecordsHandler) Register(g *gin.RouterGroup) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/comment", h.comment)
	g.POST("/:id/like", h.like)
}

func (h *RecordsHandler) create(c *gin.Context) {
	var req CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := req.UserID.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ChannelID != "" {
		if err := req.ChannelID.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	rec, err := h.Store.Create(c.Request.Context(), domain.LiveRecord{
		UserID:    req.UserID,
		MediaURL:  req.MediaURL,
		IsLive:    req.IsLive,
		ChannelID: req.ChannelID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("record", string(rec.ID)).Bool("live", rec.IsLive).Msg("record created")
	c.JSON(http.StatusCreated, rec)
}

func (h *RecordsHandler) list(c *gin.Context) {
	recs, err := h.Store.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if recs == nil {
		recs = []domain.LiveRecord{}
	}
	c.JSON(http.StatusOK, recs)
}

func (h *RecordsHandler) get(c *gin.Context) {
	rec, err := h.Store.Get(c.Request.Context(), domain.RecordID(c.Param("id")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// delete removes a record. The owner comes from the userId query parameter
// or the JSON body.
func (h *RecordsHandler) delete(c *gin.Context) {
	owner := domain.UserID(c.Query("userId"))
	if owner == "" {
		var req DeleteRequest
		_ = c.ShouldBindJSON(&req)
		owner = req.UserID
	}
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing userId"})
		return
	}

	ctx := c.Request.Context()
	id := domain.RecordID(c.Param("id"))
	rec, err := h.Store.Get(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if rec.UserID != owner {
		h.fail(c, domain.ErrForbidden)
		return
	}
	if err := h.Store.Delete(ctx, id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RecordsHandler) comment(c *gin.Context) {
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	req.User = strings.TrimSpace(req.User)
	req.Text = strings.TrimSpace(req.Text)
	if req.User == "" || req.Text == "" || len(req.Text) > maxCommentLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid comment"})
		return
	}
	if h.Limiter != nil && !h.Limiter.Allow(req.User) {
		h.fail(c, domain.ErrRateLimited)
		return
	}

	cm, err := h.Store.AppendComment(c.Request.Context(), domain.RecordID(c.Param("id")), domain.Comment{
		Author: req.User,
		Text:   req.Text,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

func (h *RecordsHandler) like(c *gin.Context) {
	n, err := h.Store.IncrementLike(c.Request.Context(), domain.RecordID(c.Param("id")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, LikeResponse{Likes: n})
}

func (h *RecordsHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("records request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
