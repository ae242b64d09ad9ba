package protocol

// Client to server.
const (
	TypeJoin      = "join"
	TypeLocUpdate = "loc_update"
	TypePing      = "ping"
)

// Server to client.
const (
	TypeRoomInfo     = "room_info"
	TypePeerLoc      = "peer_loc"
	TypePeerLeft     = "peer_left"
	TypeErrorMessage = "error_message"
	TypePong         = "pong"
)
