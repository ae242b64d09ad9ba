package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/LocShare/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const flushTimeout = 2 * time.Second

// NATS fans out through core NATS subjects, one subject per room.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

func NewNATS(nc *nats.Conn, prefix string) *NATS {
	return &NATS{nc: nc, prefix: prefix}
}

// ConnectNATS dials url with reconnects enabled forever.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("module", "bus.nats").Msg("disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("module", "bus.nats").Str("url", nc.ConnectedUrl()).Msg("reconnected")
		}),
	)
}

func (n *NATS) subject(room string) string {
	return n.prefix + room
}

func (n *NATS) Publish(_ context.Context, env core.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := n.nc.Publish(n.subject(env.Room), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe flushes so the server has registered interest before it returns.
func (n *NATS) Subscribe(ctx context.Context, room string, deliver func(core.Envelope)) (func(), error) {
	sub, err := n.nc.Subscribe(n.subject(room), func(msg *nats.Msg) {
		var env core.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Error().Err(err).Str("module", "bus.nats").Str("room", room).Msg("bad envelope")
			return
		}
		deliver(env)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	fctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := n.nc.FlushWithContext(fctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("module", "bus.nats").Str("room", room).Msg("unsubscribe")
		}
	}, nil
}

func (n *NATS) Close() error {
	n.nc.Close()
	return nil
}
