package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/LocShare/internal/domain"
	"github.com/dkeye/LocShare/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) pongWait() time.Duration {
	return ctl.opts.PingPeriod * 10 / 9
}

func (ctl *SignalWSController) writePump(ctx context.Context, id domain.MemberID, c *wsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("member", string(id)).Msg("writePump ctx done")
			// unblocks readPump
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("member", string(id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("member", string(id)).Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("member", string(id)).Msg("ping failed")
				c.Close()
				return
			}
		}
	}
}

// readPump owns the connection lifetime: its exit is the disconnect.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.MemberID, c *wsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("member", string(id)).Msg("readPump closing")
		ctl.Coord.HandleDisconnect(context.WithoutCancel(ctx), id)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(id)
		}
		c.Close()
		cancel()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("member", string(id)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, id, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, id domain.MemberID, c *wsSignalConn, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("member", string(id)).Msg("bad json")
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		ctl.handleJoin(ctx, id, c, data)
	case protocol.TypeLocUpdate:
		ctl.handleLocationUpdate(ctx, id, data)
	case protocol.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c *wsSignalConn, v any) {
	b, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
