package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/LocShare/internal/app/bus"
	"github.com/dkeye/LocShare/internal/app/store"
	"github.com/dkeye/LocShare/internal/core"
	"github.com/dkeye/LocShare/internal/domain"
	"github.com/dkeye/LocShare/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeConn records every frame queued on it.
type fakeConn struct {
	mu     sync.Mutex
	frames []map[string]any
	full   bool
	closed bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	if f.full {
		return errors.New("backpressure")
	}
	var m map[string]any
	if err := json.Unmarshal(fr, &m); err != nil {
		return err
	}
	f.frames = append(f.frames, m)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) all() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.frames...)
}

func (f *fakeConn) ofType(typ string) []map[string]any {
	var out []map[string]any
	for _, m := range f.all() {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeConn) last() map[string]any {
	all := f.all()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

type harness struct {
	coord   *Coordinator
	reg     *Registry
	clock   *fakeClock
	metrics *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newFakeClock()
	m := metrics.New(prometheus.NewRegistry())
	reg := NewRegistry(store.NewMemory(0), 120*time.Minute, WithClock(clock.Now), WithRegistryMetrics(m))
	return &harness{
		coord:   NewCoordinator(reg, bus.NewLocal(), SimplePolicy{}, m),
		reg:     reg,
		clock:   clock,
		metrics: m,
	}
}

func (h *harness) room(t *testing.T) string {
	t.Helper()
	room, err := h.reg.CreateRoom(context.Background())
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	return room.Token
}

func (h *harness) connect(id string) *fakeConn {
	conn := &fakeConn{}
	meta := domain.NewMember(domain.MemberID(id))
	h.coord.Connect(core.NewMemberSession(meta, conn))
	return conn
}

func count(m map[string]any) int {
	if m == nil || m["type"] != "room_info" {
		return -1
	}
	return int(m["count"].(float64))
}

func num(v float64) domain.Reading { return domain.NewReading(v) }

// TestEndToEndScenario walks through two members joining, relaying and leaving.
func TestEndToEndScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token := h.room(t)

	a := h.connect("A")
	if err := h.coord.HandleJoin(ctx, "A", token, "alice"); err != nil {
		t.Fatalf("A join: %v", err)
	}
	if got := count(a.last()); got != 1 {
		t.Fatalf("A last frame = %v, want room_info{count:1}", a.last())
	}

	b := h.connect("B")
	if err := h.coord.HandleJoin(ctx, "B", token, "bob"); err != nil {
		t.Fatalf("B join: %v", err)
	}
	if got := count(a.last()); got != 2 {
		t.Errorf("A last frame = %v, want room_info{count:2}", a.last())
	}
	if got := count(b.last()); got != 2 {
		t.Errorf("B last frame = %v, want room_info{count:2}", b.last())
	}

	a.reset()
	b.reset()
	h.coord.HandleLocationUpdate(ctx, "A", domain.Location{
		Lat: num(1), Lng: num(2), Accuracy: num(5), Heading: num(90), Speed: num(1.5), TS: num(1700000000000),
	})
	locs := b.ofType("peer_loc")
	if len(locs) != 1 {
		t.Fatalf("B got %d peer_loc, want 1", len(locs))
	}
	want := map[string]any{
		"type": "peer_loc", "id": "A", "nickname": "alice",
		"lat": 1.0, "lng": 2.0, "accuracy": 5.0, "heading": 90.0, "speed": 1.5, "ts": 1700000000000.0,
	}
	for k, v := range want {
		if locs[0][k] != v {
			t.Errorf("peer_loc[%q] = %v, want %v", k, locs[0][k], v)
		}
	}
	if len(a.all()) != 0 {
		t.Errorf("sender received %v, want nothing", a.all())
	}

	h.coord.HandleDisconnect(ctx, "B")
	frames := a.all()
	if len(frames) != 2 {
		t.Fatalf("A got %v after B left, want peer_left then room_info", frames)
	}
	if frames[0]["type"] != "peer_left" || frames[0]["id"] != "B" {
		t.Errorf("first frame = %v, want peer_left{id:B}", frames[0])
	}
	if got := count(frames[1]); got != 1 {
		t.Errorf("second frame = %v, want room_info{count:1}", frames[1])
	}
}

// TestJoinRejection checks invalid, empty and expired tokens.
func TestJoinRejection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token := h.room(t)

	member := h.connect("M")
	if err := h.coord.HandleJoin(ctx, "M", token, ""); err != nil {
		t.Fatalf("member join: %v", err)
	}
	expired := h.room(t)
	h.clock.Set(h.clock.Now().Add(2 * time.Hour))
	fresh := h.room(t)

	tests := []struct {
		name  string
		token string
	}{
		{"unknown", "nonexistent"},
		{"empty", ""},
		{"expired", expired},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			member.reset()
			id := fmt.Sprintf("X%d", i)
			x := h.connect(id)

			err := h.coord.HandleJoin(ctx, domain.MemberID(id), tt.token, "x")
			if !errors.Is(err, domain.ErrInvalidRoom) {
				t.Fatalf("HandleJoin() error = %v, want ErrInvalidRoom", err)
			}
			frames := x.all()
			if len(frames) != 1 || frames[0]["type"] != "error_message" {
				t.Fatalf("joiner got %v, want exactly one error_message", frames)
			}
			if frames[0]["message"] != "invalid or expired link" {
				t.Errorf("message = %v", frames[0]["message"])
			}
			if len(member.all()) != 0 {
				t.Errorf("existing member got %v, want nothing", member.all())
			}
			if _, bound := h.coord.Sessions.RoomOf(domain.MemberID(id)); bound {
				t.Error("rejected connection is bound")
			}
		})
	}

	e, ok := h.coord.Rooms.Get(token)
	if !ok || e.room.MemberCount() != 1 {
		t.Errorf("membership changed by rejected joins")
	}
	if _, ok := h.coord.Rooms.Get(fresh); ok {
		t.Error("untouched room has local state")
	}
	if got := testutil.ToFloat64(h.metrics.Joins.WithLabelValues(metrics.JoinRejected)); got != 3 {
		t.Errorf("rejected joins = %v, want 3", got)
	}
}

// TestMembershipAccounting checks K joins and J leaves end at K-J for every survivor.
func TestMembershipAccounting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token := h.room(t)
	const k, j = 7, 4

	conns := make([]*fakeConn, k)
	for i := 0; i < k; i++ {
		conns[i] = h.connect(fmt.Sprintf("m%d", i))
		if err := h.coord.HandleJoin(ctx, domain.MemberID(fmt.Sprintf("m%d", i)), token, ""); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	for i := 0; i < j; i++ {
		h.coord.HandleDisconnect(ctx, domain.MemberID(fmt.Sprintf("m%d", i)))
	}

	for i := j; i < k; i++ {
		if got := count(conns[i].last()); got != k-j {
			t.Errorf("m%d last frame = %v, want room_info{count:%d}", i, conns[i].last(), k-j)
		}
	}
}

// TestConcurrentMembershipIsConsistent races joins and leaves on one room.
func TestConcurrentMembershipIsConsistent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token := h.room(t)
	const n = 50

	stay := h.connect("stay")
	h.coord.HandleJoin(ctx, "stay", token, "")

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := domain.MemberID(fmt.Sprintf("c%d", i))
		h.connect(string(id))
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.coord.HandleJoin(ctx, id, token, "")
			if i%2 == 0 {
				h.coord.HandleDisconnect(ctx, id)
			}
		}()
	}
	wg.Wait()

	want := 1 + n/2
	if got := count(stay.last()); got != want {
		t.Errorf("last room_info = %d, want %d", got, want)
	}
	e, _ := h.coord.Rooms.Get(token)
	if got := e.room.MemberCount(); got != want {
		t.Errorf("MemberCount() = %d, want %d", got, want)
	}
}

// TestUnboundUpdateIsDropped checks that updates before join reach nobody.
func TestUnboundUpdateIsDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token := h.room(t)

	member := h.connect("M")
	h.coord.HandleJoin(ctx, "M", token, "")
	member.reset()

	stranger := h.connect("S")
	h.coord.HandleLocationUpdate(ctx, "S", domain.Location{Lat: num(1)})

	if len(member.all()) != 0 || len(stranger.all()) != 0 {
		t.Errorf("unbound update produced frames: member=%v stranger=%v", member.all(), stranger.all())
	}
}

// TestRelayOmitsAbsentFields checks that only provided fields are relayed
// and explicit nulls pass through as null.
func TestRelayOmitsAbsentFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token := h.room(t)

	h.connect("A")
	b := h.connect("B")
	h.coord.HandleJoin(ctx, "A", token, "")
	h.coord.HandleJoin(ctx, "B", token, "")
	b.reset()

	h.coord.HandleLocationUpdate(ctx, "A", domain.Location{Lat: num(0), Lng: num(0), Speed: domain.NullReading()})
	got := b.last()
	if got["lat"] != 0.0 || got["lng"] != 0.0 {
		t.Errorf("zero coordinates lost: %v", got)
	}
	if _, ok := got["heading"]; ok {
		t.Errorf("absent heading relayed: %v", got)
	}
	if v, ok := got["speed"]; !ok || v != nil {
		t.Errorf("null speed not relayed as null: %v", got)
	}
	if got["nickname"] != "" {
		t.Errorf("nickname = %v, want empty", got["nickname"])
	}
}

// TestDisconnectUnboundIsNoop checks that leaving without joining notifies nobody.
func TestDisconnectUnboundIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token := h.room(t)

	member := h.connect("M")
	h.coord.HandleJoin(ctx, "M", token, "")
	member.reset()

	h.connect("S")
	h.coord.HandleDisconnect(ctx, "S")

	if len(member.all()) != 0 {
		t.Errorf("member got %v", member.all())
	}
	if h.coord.Sessions.Len() != 1 {
		t.Errorf("Sessions.Len() = %d, want 1", h.coord.Sessions.Len())
	}
}

// TestLastLeaveClosesLocalRoom checks that an empty room releases its subscription
// while the registry still reports the room as active.
func TestLastLeaveClosesLocalRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token := h.room(t)

	h.connect("A")
	h.coord.HandleJoin(ctx, "A", token, "")
	h.coord.HandleDisconnect(ctx, "A")

	if _, ok := h.coord.Rooms.Get(token); ok {
		t.Error("empty room still open")
	}
	if !h.reg.IsActive(ctx, token) {
		t.Error("room inactive after members left")
	}

	b := h.connect("B")
	if err := h.coord.HandleJoin(ctx, "B", token, ""); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if got := count(b.last()); got != 1 {
		t.Errorf("rejoin room_info = %v, want count 1", b.last())
	}
}

// TestRejoinSameRoom checks that a second join neither double counts nor keeps the old nickname.
func TestRejoinSameRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token := h.room(t)

	h.connect("A")
	b := h.connect("B")
	h.coord.HandleJoin(ctx, "A", token, "alice")
	h.coord.HandleJoin(ctx, "B", token, "")
	h.coord.HandleJoin(ctx, "A", token, "alicia")

	if got := count(b.last()); got != 2 {
		t.Errorf("room_info after rejoin = %v, want count 2", b.last())
	}
	b.reset()
	h.coord.HandleLocationUpdate(ctx, "A", domain.Location{Lat: num(1)})
	if got := b.last(); got["nickname"] != "alicia" {
		t.Errorf("nickname = %v, want alicia", got["nickname"])
	}
}

// TestJoinOtherRoomMovesMember checks that switching rooms leaves the old one first.
func TestJoinOtherRoomMovesMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, second := h.room(t), h.room(t)

	h.connect("A")
	b := h.connect("B")
	h.coord.HandleJoin(ctx, "A", first, "")
	h.coord.HandleJoin(ctx, "B", first, "")
	b.reset()

	if err := h.coord.HandleJoin(ctx, "A", second, ""); err != nil {
		t.Fatalf("move: %v", err)
	}
	frames := b.all()
	if len(frames) != 2 || frames[0]["type"] != "peer_left" || count(frames[1]) != 1 {
		t.Errorf("old room saw %v, want peer_left then room_info{1}", frames)
	}
	bind, _ := h.coord.Sessions.RoomOf("A")
	if bind.Room != second {
		t.Errorf("A bound to %s, want %s", bind.Room, second)
	}
}

// TestRejectedRejoinKeepsBinding checks that a failed second join changes nothing.
func TestRejectedRejoinKeepsBinding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token := h.room(t)

	h.connect("A")
	h.coord.HandleJoin(ctx, "A", token, "")
	h.coord.HandleJoin(ctx, "A", "bogus", "")

	bind, ok := h.coord.Sessions.RoomOf("A")
	if !ok || bind.Room != token {
		t.Errorf("binding = %+v, %v; want %s", bind, ok, token)
	}
}

// TestSlowMemberIsKicked checks the backpressure policy.
func TestSlowMemberIsKicked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token := h.room(t)

	h.connect("A")
	slow := h.connect("B")
	h.coord.HandleJoin(ctx, "A", token, "")
	h.coord.HandleJoin(ctx, "B", token, "")

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()
	h.coord.HandleLocationUpdate(ctx, "A", domain.Location{Lat: num(1)})

	slow.mu.Lock()
	closed := slow.closed
	slow.mu.Unlock()
	if !closed {
		t.Error("slow member not closed")
	}
	if got := testutil.ToFloat64(h.metrics.DroppedFrames); got != 1 {
		t.Errorf("dropped_frames_total = %v, want 1", got)
	}
}

func TestLenientPolicyKeepsSlowMember(t *testing.T) {
	h := newHarness(t)
	h.coord.Policy = LenientPolicy{}
	ctx := context.Background()
	token := h.room(t)

	fast := h.connect("A")
	slow := h.connect("B")
	h.coord.HandleJoin(ctx, "A", token, "")
	h.coord.HandleJoin(ctx, "B", token, "")

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()
	h.coord.HandleLocationUpdate(ctx, "A", domain.Location{Lat: num(1)})

	slow.mu.Lock()
	closed := slow.closed
	slow.full = false
	slow.mu.Unlock()
	if closed {
		t.Fatal("slow member closed under lenient policy")
	}

	fast.reset()
	h.coord.HandleLocationUpdate(ctx, "B", domain.Location{Lat: num(2)})
	if got := len(fast.ofType("peer_loc")); got != 1 {
		t.Errorf("peer_loc frames = %d, want 1", got)
	}
}
