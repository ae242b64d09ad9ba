package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/LocShare/internal/app"
	"github.com/dkeye/LocShare/internal/core"
	"github.com/dkeye/LocShare/internal/domain"
	"github.com/dkeye/LocShare/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

type SignalWSController struct {
	Coord   *app.Coordinator
	Limiter *RoomRateLimiter
	Metrics *metrics.Metrics
	opts    Options
}

func NewSignalWSController(coord *app.Coordinator, limiter *RoomRateLimiter, m *metrics.Metrics, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	return &SignalWSController{
		Coord:   coord,
		Limiter: limiter,
		Metrics: m,
		opts:    opts,
	}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
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

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := domain.NewMemberID()
	client := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("member", string(id)).Str("client", client).Msg("new WS connection")

	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}
	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}

	sess := core.NewMemberSession(domain.NewMember(id), conn)
	ctl.Coord.Connect(sess)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, id, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}
