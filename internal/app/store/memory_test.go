package store

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/LocShare/internal/domain"
)

// TestMemoryInsertGet checks that an inserted room is returned unchanged.
func TestMemoryInsertGet(t *testing.T) {
	m := NewMemory(0)
	room := domain.NewRoom(time.Now(), time.Hour)

	ok, err := m.Insert(context.Background(), room)
	if err != nil || !ok {
		t.Fatalf("Insert() = %v, %v; want true, nil", ok, err)
	}

	got, found, err := m.Get(context.Background(), room.Token)
	if err != nil || !found {
		t.Fatalf("Get() found=%v err=%v", found, err)
	}
	if got.Token != room.Token || !got.ExpiresAt.Equal(room.ExpiresAt) {
		t.Errorf("Get() = %+v, want %+v", got, room)
	}
}

// TestMemoryInsertRejectsTakenToken checks insert-if-absent semantics.
func TestMemoryInsertRejectsTakenToken(t *testing.T) {
	m := NewMemory(0)
	room := domain.NewRoom(time.Now(), time.Hour)

	if ok, _ := m.Insert(context.Background(), room); !ok {
		t.Fatal("first Insert() rejected")
	}
	if ok, _ := m.Insert(context.Background(), room); ok {
		t.Error("second Insert() with the same token accepted")
	}
}

// TestMemoryUnknownToken checks that lookups of missing tokens are not errors.
func TestMemoryUnknownToken(t *testing.T) {
	m := NewMemory(0)
	_, found, err := m.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Get() found a room for an unknown token")
	}
}

// TestMemorySweepEvictsExpired checks that expired rooms are reclaimed.
func TestMemorySweepEvictsExpired(t *testing.T) {
	m := NewMemory(0)
	live := domain.NewRoom(time.Now(), time.Hour)
	dead := domain.NewRoom(time.Now().Add(-2*time.Hour), time.Hour)

	m.Insert(context.Background(), live)
	m.Insert(context.Background(), dead)
	time.Sleep(time.Millisecond)
	m.Sweep()

	if n := m.Len(); n != 1 {
		t.Errorf("Len() after sweep = %d, want 1", n)
	}
	if _, found, _ := m.Get(context.Background(), dead.Token); found {
		t.Error("expired room still reachable after sweep")
	}
}
