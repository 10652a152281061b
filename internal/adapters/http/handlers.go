package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ringline/ringline/internal/app"
	"github.com/ringline/ringline/internal/domain"
	"github.com/ringline/ringline/internal/token"
)

type CallHandler struct {
	Engine  *app.Engine
	Issuer  *token.Issuer
	Limiter *app.CallRateLimiter
	TTL     time.Duration
}

func (h *CallHandler) IssueToken(c *gin.Context) {
	var req struct {
		ChannelName string `json:"channelName"`
		UID         string `json:"uid"`
		TTLSeconds  int    `json:"ttlSeconds"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.ChannelName == "" || req.UID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channelName and uid are required"})
		return
	}
	ttl := h.TTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	cred, err := h.Issuer.Issue(req.ChannelName, req.UID, ttl)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("token issue")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"token":    cred.Token,
		"expireAt": cred.ExpireAt.Unix(),
	})
}

func (h *CallHandler) StartCall(c *gin.Context) {
	var req struct {
		CallerID         string `json:"callerId"`
		CalleeID         string `json:"calleeId"`
		RequestedChannel string `json:"requestedChannel"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	caller := domain.UserID(req.CallerID)
	if !h.Limiter.Allow(caller) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": app.ErrTooManyCalls.Error()})
		return
	}

	res, err := h.Engine.StartCall(caller, domain.UserID(req.CalleeID), req.RequestedChannel)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"callId":      res.CallID,
		"channelName": res.Channel,
		"token":       res.Token.Token,
	})
}

func (h *CallHandler) AcceptCall(c *gin.Context) {
	var req struct {
		CallID   string `json:"callId"`
		CalleeID string `json:"calleeId"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	res, err := h.Engine.AcceptCall(domain.CallID(req.CallID), domain.UserID(req.CalleeID))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"callId":      res.CallID,
		"channelName": res.Channel,
		"token":       res.Token.Token,
	})
}

func (h *CallHandler) RejectCall(c *gin.Context) {
	var req struct {
		CallID   string `json:"callId"`
		CalleeID string `json:"calleeId"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.Engine.RejectCall(domain.CallID(req.CallID), domain.UserID(req.CalleeID)); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *CallHandler) EndCall(c *gin.Context) {
	var req struct {
		CallID string `json:"callId"`
		UserID string `json:"userId"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.Engine.EndCall(domain.CallID(req.CallID), domain.UserID(req.UserID)); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrCallNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, app.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, app.ErrInvalidState), errors.Is(err, app.ErrChannelInUse):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUserIDEmpty), errors.Is(err, domain.ErrUserIDTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Msg("engine error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
