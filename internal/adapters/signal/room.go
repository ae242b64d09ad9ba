package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/LocShare/internal/domain"
	"github.com/dkeye/LocShare/internal/metrics"
	"github.com/dkeye/LocShare/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	id domain.MemberID,
	conn *wsSignalConn,
	data []byte,
) {
	var p protocol.JoinRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("member", string(id)).Msg("bad join payload")
		ctl.sendJSON(conn, protocol.NewErrorMessage("bad payload"))
		return
	}

	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("member", string(id)).Msg("join rate limited")
		if ctl.Metrics != nil {
			ctl.Metrics.Joins.WithLabelValues(metrics.JoinLimited).Inc()
		}
		ctl.sendJSON(conn, protocol.NewErrorMessage(domain.ErrRateLimited.Error()))
		return
	}

	// rejection is reported to the client by the coordinator
	_ = ctl.Coord.HandleJoin(ctx, id, p.Token, p.Nickname)
}
