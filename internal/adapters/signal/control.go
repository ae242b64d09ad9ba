package signal

import "github.com/dkeye/LocShare/internal/protocol"

func (ctl *SignalWSController) handlePing(
	conn *wsSignalConn,
) {
	ctl.sendJSON(conn, protocol.NewPong())
}
