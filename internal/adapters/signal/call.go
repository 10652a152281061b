package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/ringline/ringline/internal/app"
	"github.com/ringline/ringline/internal/domain"
)

func (ctl *Controller) handleRegister(c *wsConn, data []byte) {
	type registerPayload struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	}
	var p registerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad register payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	uid := domain.UserID(p.UserID)
	if err := ctl.Engine.RegisterPresence(uid, c); err != nil {
		ctl.sendError(c, err.Error())
		return
	}

	log.Info().Str("module", "signal").Str("conn", c.id.String()).Str("user", p.UserID).Msg("registered")
	ctl.sendJSON(c, map[string]any{
		"type":   "registered",
		"userId": p.UserID,
	})
}

// bound resolves the user this connection registered as. Every call
// operation requires it: an anonymous socket cannot act on calls.
func (ctl *Controller) bound(c *wsConn) (domain.UserID, bool) {
	uid, ok := ctl.Engine.Presence().Owner(c.id)
	if !ok {
		ctl.sendError(c, "register first")
	}
	return uid, ok
}

func (ctl *Controller) handleCallUser(c *wsConn, data []byte) {
	type callPayload struct {
		Type     string `json:"type"`
		CallerID string `json:"callerId"`
		CalleeID string `json:"calleeId"`
		Channel  string `json:"channelName"`
	}
	var p callPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	uid, ok := ctl.bound(c)
	if !ok {
		return
	}
	if p.CallerID != "" && domain.UserID(p.CallerID) != uid {
		ctl.sendError(c, "callerId does not match registered user")
		return
	}
	if !ctl.Limiter.Allow(uid) {
		ctl.sendError(c, app.ErrTooManyCalls.Error())
		return
	}

	res, err := ctl.Engine.StartCall(uid, domain.UserID(p.CalleeID), p.Channel)
	if err != nil {
		ctl.sendError(c, err.Error())
		return
	}

	resp := struct {
		Type    string        `json:"type"`
		CallID  domain.CallID `json:"callId"`
		Channel string        `json:"channelName"`
		Token   string        `json:"token"`
	}{
		Type:    "call-initiated",
		CallID:  res.CallID,
		Channel: res.Channel,
		Token:   res.Token.Token,
	}
	ctl.sendJSON(c, resp)
}

func (ctl *Controller) handleAcceptCall(c *wsConn, data []byte) {
	type acceptPayload struct {
		Type     string `json:"type"`
		CallID   string `json:"callId"`
		CalleeID string `json:"calleeId"`
	}
	var p acceptPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad accept payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	uid, ok := ctl.bound(c)
	if !ok {
		return
	}
	if p.CalleeID != "" && domain.UserID(p.CalleeID) != uid {
		ctl.sendError(c, "calleeId does not match registered user")
		return
	}

	res, err := ctl.Engine.AcceptCall(domain.CallID(p.CallID), uid)
	if err != nil {
		ctl.sendError(c, engineErrorCode(err))
		return
	}

	resp := struct {
		Type    string        `json:"type"`
		CallID  domain.CallID `json:"callId"`
		Channel string        `json:"channelName"`
		Token   string        `json:"token"`
	}{
		Type:    "call-accepted",
		CallID:  res.CallID,
		Channel: res.Channel,
		Token:   res.Token.Token,
	}
	ctl.sendJSON(c, resp)
}

func (ctl *Controller) handleRejectCall(c *wsConn, data []byte) {
	type rejectPayload struct {
		Type     string `json:"type"`
		CallID   string `json:"callId"`
		CalleeID string `json:"calleeId"`
	}
	var p rejectPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad reject payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	uid, ok := ctl.bound(c)
	if !ok {
		return
	}
	if p.CalleeID != "" && domain.UserID(p.CalleeID) != uid {
		ctl.sendError(c, "calleeId does not match registered user")
		return
	}

	if err := ctl.Engine.RejectCall(domain.CallID(p.CallID), uid); err != nil {
		ctl.sendError(c, engineErrorCode(err))
		return
	}
	ctl.sendJSON(c, map[string]any{
		"type":   "call-rejected",
		"callId": p.CallID,
	})
}

func (ctl *Controller) handleEndCall(c *wsConn, data []byte) {
	type endPayload struct {
		Type   string `json:"type"`
		CallID string `json:"callId"`
		UserID string `json:"userId"`
	}
	var p endPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad end payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	uid, ok := ctl.bound(c)
	if !ok {
		return
	}
	if p.UserID != "" && domain.UserID(p.UserID) != uid {
		ctl.sendError(c, "userId does not match registered user")
		return
	}

	if err := ctl.Engine.EndCall(domain.CallID(p.CallID), uid); err != nil {
		ctl.sendError(c, engineErrorCode(err))
		return
	}
	ctl.sendJSON(c, map[string]any{
		"type":   "call-end-ack",
		"callId": p.CallID,
	})
}

func engineErrorCode(err error) string {
	switch {
	case errors.Is(err, app.ErrCallNotFound):
		return "call_not_found"
	case errors.Is(err, app.ErrForbidden):
		return "forbidden"
	case errors.Is(err, app.ErrInvalidState):
		return "invalid_state"
	default:
		return err.Error()
	}
}
