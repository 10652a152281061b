// Package signal is the WebSocket face of the call engine: one upgraded
// connection per client, JSON frames dispatched on their "type" field.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ringline/ringline/internal/app"
	"github.com/ringline/ringline/internal/config"
	"github.com/ringline/ringline/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Engine  *app.Engine
	Limiter *app.CallRateLimiter
	cfg     *config.Config
}

func NewController(engine *app.Engine, limiter *app.CallRateLimiter, cfg *config.Config) *Controller {
	return &Controller{Engine: engine, Limiter: limiter, cfg: cfg}
}

// wsConn couples a gorilla conn with a bounded send queue. Slow readers
// get frames dropped, not a blocked engine.
type wsConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) ID() core.ConnID { return c.id }

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until the
// peer goes away. The transport-level disconnect is what unbinds the
// connection from presence, not any client message.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}

	conn := &wsConn{
		id:   core.ConnID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	log.Info().Str("module", "signal").
		Str("conn", conn.id.String()).
		Str("ct", c.GetString("client_token")).
		Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn)
		ctl.Engine.Disconnect(conn.id)
	}()
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *wsConn, msg string) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"error": msg,
	})
}
