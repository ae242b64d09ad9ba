package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/LocShare/internal/domain"
	"github.com/dkeye/LocShare/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleLocationUpdate(
	ctx context.Context,
	id domain.MemberID,
	data []byte,
) {
	var p protocol.LocUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("member", string(id)).Msg("bad loc_update payload")
		return
	}
	ctl.Coord.HandleLocationUpdate(ctx, id, p.Location)
}
