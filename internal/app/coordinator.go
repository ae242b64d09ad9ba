package app

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/LocShare/internal/app/presence"
	"github.com/dkeye/LocShare/internal/core"
	"github.com/dkeye/LocShare/internal/domain"
	"github.com/dkeye/LocShare/internal/metrics"
	"github.com/dkeye/LocShare/internal/protocol"
	"github.com/rs/zerolog/log"
)

const presenceTimeout = 2 * time.Second

// Coordinator binds connections to rooms and relays their events.
//
// Membership changes of one room (join, leave) run under that room's event
// lock together with the announcement they trigger. The announcement
// carries no count: every receiving process reads the shared presence set
// when it delivers, so the last room_info a member sees is never older
// than the last change. Location relays only read membership and are best
// effort.
type Coordinator struct {
	Registry *Registry
	Sessions *Sessions
	Rooms    *RoomManager
	Bus      core.Bus
	Presence core.Presence
	Policy   Policy
	Metrics  *metrics.Metrics
}

type CoordinatorOption func(*Coordinator)

// WithPresence shares member counts with other processes on the same bus.
func WithPresence(p core.Presence) CoordinatorOption {
	return func(c *Coordinator) { c.Presence = p }
}

func NewCoordinator(reg *Registry, bus core.Bus, policy Policy, m *metrics.Metrics, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		Registry: reg,
		Sessions: NewSessions(),
		Bus:      bus,
		Presence: presence.NewMemory(),
		Policy:   policy,
		Metrics:  m,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Rooms = NewRoomManager(bus, c.deliver)
	return c
}

// Connect registers a live, unbound connection.
func (c *Coordinator) Connect(sess core.MemberSession) {
	c.Sessions.Attach(sess)
	if c.Metrics != nil {
		c.Metrics.Connections.Inc()
	}
}

// HandleJoin binds id to token. A rejected join reports to this connection
// only and leaves every room untouched.
func (c *Coordinator) HandleJoin(ctx context.Context, id domain.MemberID, token, nickname string) error {
	sess, ok := c.Sessions.Get(id)
	if !ok {
		return errors.New("join from unknown connection")
	}

	if !c.Registry.IsActive(ctx, token) {
		log.Info().Str("module", "app.coordinator").Str("member", string(id)).Str("room", token).Msg("join rejected")
		c.countJoin(metrics.JoinRejected)
		c.Reject(sess, domain.ErrInvalidRoom)
		return domain.ErrInvalidRoom
	}

	if prev, bound := c.Sessions.RoomOf(id); bound && prev.Room != token {
		c.leave(ctx, prev)
		// unbound until the new room takes it
		c.Sessions.Bind(id, "", prev.Member.Nickname)
	}

	err := c.withRoom(ctx, token, func(e *roomEntry) {
		c.Sessions.Bind(id, token, nickname)
		e.room.AddMember(sess)
		if err := c.Presence.Add(ctx, token, id); err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("member", string(id)).Str("room", token).Msg("presence add")
		}
		c.announceMembership(ctx, token)
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("member", string(id)).Str("room", token).Msg("join failed")
		c.Reject(sess, errors.New("room temporarily unavailable"))
		return err
	}

	c.countJoin(metrics.JoinAccepted)
	log.Info().Str("module", "app.coordinator").Str("member", string(id)).Str("room", token).Str("nickname", nickname).Msg("joined")
	return nil
}

// HandleLocationUpdate relays loc to every other member of id's room.
// Updates from unbound connections are dropped silently.
func (c *Coordinator) HandleLocationUpdate(ctx context.Context, id domain.MemberID, loc domain.Location) {
	b, ok := c.Sessions.RoomOf(id)
	if !ok {
		return
	}
	if c.Metrics != nil {
		c.Metrics.Relayed.Inc()
	}
	c.publish(ctx, b.Room, id, protocol.NewPeerLoc(b.Member, loc))
}

// HandleDisconnect forgets id. Remaining members learn about it via
// peer_left followed by the new room_info.
func (c *Coordinator) HandleDisconnect(ctx context.Context, id domain.MemberID) {
	b, bound := c.Sessions.Detach(id)
	if c.Metrics != nil {
		c.Metrics.Connections.Dec()
	}
	if !bound {
		return
	}
	c.leave(ctx, b)
	log.Info().Str("module", "app.coordinator").Str("member", string(id)).Str("room", b.Room).Msg("left")
}

// Reject sends an error_message to one connection.
func (c *Coordinator) Reject(sess core.MemberSession, reason error) {
	frame, err := protocol.Encode(protocol.NewErrorMessage(reason.Error()))
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("encode error_message")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("member", string(sess.Meta().ID)).Msg("error_message not queued")
	}
}

func (c *Coordinator) leave(ctx context.Context, b Binding) {
	e, ok := c.Rooms.Get(b.Room)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || !e.room.RemoveMember(b.Member.ID) {
		return
	}
	if err := c.Presence.Remove(ctx, b.Room, b.Member.ID); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("member", string(b.Member.ID)).Str("room", b.Room).Msg("presence remove")
	}
	c.publish(ctx, b.Room, "", protocol.NewPeerLeft(b.Member.ID))
	c.announceMembership(ctx, b.Room)
	if e.room.MemberCount() == 0 {
		c.Rooms.Stop(b.Room, e)
		c.syncLiveRooms()
	}
}

// withRoom runs fn under the room's event lock, retrying when it raced
// with the room being closed.
func (c *Coordinator) withRoom(ctx context.Context, token string, fn func(*roomEntry)) error {
	for {
		e, err := c.Rooms.GetOrCreate(ctx, token)
		if err != nil {
			return err
		}
		e.mu.Lock()
		if e.stopped {
			e.mu.Unlock()
			continue
		}
		fn(e)
		if e.room.MemberCount() == 0 {
			c.Rooms.Stop(token, e)
		}
		e.mu.Unlock()
		c.syncLiveRooms()
		return nil
	}
}

func (c *Coordinator) publish(ctx context.Context, room string, exclude domain.MemberID, v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", room).Msg("encode frame")
		return
	}
	env := core.Envelope{Room: room, Exclude: exclude, Data: []byte(frame)}
	if err := c.Bus.Publish(ctx, env); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", room).Msg("publish")
	}
}

func (c *Coordinator) announceMembership(ctx context.Context, room string) {
	env := core.Envelope{Room: room, Kind: core.KindMembership}
	if err := c.Bus.Publish(ctx, env); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", room).Msg("publish membership")
	}
}

// roomInfo renders the current shared count. If presence is unreachable
// the local count is the best remaining answer.
func (c *Coordinator) roomInfo(room core.RoomService) (core.Frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	n, err := c.Presence.Count(ctx, room.Token())
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", room.Token()).Msg("presence count")
		n = room.MemberCount()
	}
	return protocol.Encode(protocol.NewRoomInfo(n))
}

// deliver is the bus callback for every room with local members.
func (c *Coordinator) deliver(room core.RoomService, env core.Envelope) {
	data := core.Frame(env.Data)
	if env.Kind == core.KindMembership {
		frame, err := c.roomInfo(room)
		if err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("room", room.Token()).Msg("encode room_info")
			return
		}
		data = frame
	}
	res := room.Deliver(env.Exclude, data)
	if len(res.Dropped) == 0 {
		return
	}
	if c.Metrics != nil {
		c.Metrics.DroppedFrames.Add(float64(len(res.Dropped)))
	}
	if c.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch c.Policy.OnBackPressure(room, slow) {
		case KickMember:
			log.Warn().Str("module", "app.coordinator").Str("member", string(slow.Meta().ID)).Str("room", room.Token()).Msg("kicking slow member")
			slow.Signal().Close()
		case DropFrame, NoAction:
		}
	}
}

func (c *Coordinator) countJoin(result string) {
	if c.Metrics != nil {
		c.Metrics.Joins.WithLabelValues(result).Inc()
	}
}

func (c *Coordinator) syncLiveRooms() {
	if c.Metrics != nil {
		c.Metrics.LiveRooms.Set(float64(c.Rooms.Len()))
	}
}
