package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ai-answer-engine-be/pkg/pipeline/state"
)

func newTestStore(t *testing.T, ttl time.Duration, maxTurns int) *SessionStore {
	t.Helper()
	store := NewSessionStore(ttl, time.Hour, maxTurns)
	t.Cleanup(store.Close)
	return store
}

func turnPatch(query, answer string) state.SessionPatch {
	return state.SessionPatch{
		AppendTurn: &state.SessionTurn{Query: query, Answer: answer, At: time.Now()},
	}
}

func TestSessionStoreGetMissing(t *testing.T) {
	store := newTestStore(t, time.Minute, 10)

	got, err := store.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil for unknown session", got)
	}
}

func TestSessionStoreUpdateThenGet(t *testing.T) {
	store := newTestStore(t, time.Minute, 10)
	ctx := context.Background()

	patch := state.SessionPatch{
		AppendTurn: &state.SessionTurn{Query: "hotels in boston", Answer: "found some", At: time.Now()},
		Filters:    &state.ExtractedFilters{Hotel: &state.HotelFilters{Destination: "boston"}},
		Vertical:   state.VerticalHotel,
		Strength:   state.QualityGood,
	}
	if err := store.Update(ctx, "sess-1", patch); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil, want stored session")
	}
	if got.SessionID != "sess-1" {
		t.Errorf("SessionID = %s, want sess-1", got.SessionID)
	}
	if len(got.Thread) != 1 || got.Thread[0].Query != "hotels in boston" {
		t.Errorf("Thread = %+v, want the appended turn", got.Thread)
	}
	if got.LastFilters.Hotel == nil || got.LastFilters.Hotel.Destination != "boston" {
		t.Errorf("LastFilters.Hotel = %+v, want destination boston", got.LastFilters.Hotel)
	}
	if got.LastVertical != state.VerticalHotel {
		t.Errorf("LastVertical = %s, want %s", got.LastVertical, state.VerticalHotel)
	}
	if got.LastStrength != state.QualityGood {
		t.Errorf("LastStrength = %s, want %s", got.LastStrength, state.QualityGood)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt is zero, want set on update")
	}
}

func TestSessionStoreCopyOut(t *testing.T) {
	store := newTestStore(t, time.Minute, 10)
	ctx := context.Background()

	if err := store.Update(ctx, "sess-1", turnPatch("original", "answer")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	first, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	first.Thread[0].Query = "tampered"
	first.Thread = append(first.Thread, state.SessionTurn{Query: "injected"})

	second, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(second.Thread) != 1 {
		t.Fatalf("Thread length = %d, want 1 after caller-side append", len(second.Thread))
	}
	if second.Thread[0].Query != "original" {
		t.Errorf("Thread[0].Query = %s, want original", second.Thread[0].Query)
	}
}

func TestSessionStoreTrimsThread(t *testing.T) {
	store := newTestStore(t, time.Minute, 2)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		patch := turnPatch(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		if err := store.Update(ctx, "sess-1", patch); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Thread) != 2 {
		t.Fatalf("Thread length = %d, want 2", len(got.Thread))
	}
	if got.Thread[0].Query != "q2" || got.Thread[1].Query != "q3" {
		t.Errorf("Thread queries = %s, %s, want q2, q3", got.Thread[0].Query, got.Thread[1].Query)
	}
}

func TestSessionStoreMergesFilters(t *testing.T) {
	store := newTestStore(t, time.Minute, 10)
	ctx := context.Background()

	err := store.Update(ctx, "sess-1", state.SessionPatch{
		Filters: &state.ExtractedFilters{Hotel: &state.HotelFilters{Destination: "boston", Guests: 2}},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// A different vertical's filters arrive; the hotel slot is inherited.
	err = store.Update(ctx, "sess-1", state.SessionPatch{
		Filters: &state.ExtractedFilters{Flight: &state.FlightFilters{Origin: "bos", Destination: "den"}},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastFilters.Hotel == nil || got.LastFilters.Hotel.Destination != "boston" {
		t.Errorf("Hotel filters = %+v, want inherited destination boston", got.LastFilters.Hotel)
	}
	if got.LastFilters.Flight == nil || got.LastFilters.Flight.Origin != "bos" {
		t.Errorf("Flight filters = %+v, want fresh origin bos", got.LastFilters.Flight)
	}

	// A fresh hotel extraction replaces the whole hotel slot.
	err = store.Update(ctx, "sess-1", state.SessionPatch{
		Filters: &state.ExtractedFilters{Hotel: &state.HotelFilters{Area: "back bay"}},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err = store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastFilters.Hotel == nil || got.LastFilters.Hotel.Area != "back bay" {
		t.Fatalf("Hotel filters = %+v, want fresh area back bay", got.LastFilters.Hotel)
	}
	if got.LastFilters.Hotel.Destination != "" {
		t.Errorf("Hotel.Destination = %s, want empty after slot replacement", got.LastFilters.Hotel.Destination)
	}
	if got.LastFilters.Flight == nil {
		t.Error("Flight filters dropped, want inherited")
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	store := newTestStore(t, 10*time.Millisecond, 10)
	ctx := context.Background()

	if err := store.Update(ctx, "sess-1", turnPatch("old question", "old answer")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get() after TTL = %+v, want nil", got)
	}

	// Updating an expired session starts fresh instead of resurrecting it.
	if err := store.Update(ctx, "sess-1", turnPatch("new question", "new answer")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err = store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil, want refreshed session")
	}
	if len(got.Thread) != 1 || got.Thread[0].Query != "new question" {
		t.Errorf("Thread = %+v, want only the new turn", got.Thread)
	}
}

func TestSessionStoreConcurrentUpdates(t *testing.T) {
	store := newTestStore(t, time.Minute, 0)
	ctx := context.Background()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				patch := turnPatch(fmt.Sprintf("w%d-q%d", w, i), "a")
				if err := store.Update(ctx, "shared", patch); err != nil {
					t.Errorf("Update() error = %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	got, err := store.Get(ctx, "shared")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil, want shared session")
	}
	if len(got.Thread) != workers*perWorker {
		t.Errorf("Thread length = %d, want %d", len(got.Thread), workers*perWorker)
	}
}

func TestSessionStoreDelete(t *testing.T) {
	store := newTestStore(t, time.Minute, 10)
	ctx := context.Background()

	if err := store.Update(ctx, "sess-1", turnPatch("q", "a")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	store.Delete("sess-1")

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() after Delete = %+v, want nil", got)
	}
}

func TestSessionStoreCancelledContext(t *testing.T) {
	store := newTestStore(t, time.Minute, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Get(ctx, "sess-1"); err == nil {
		t.Error("Get() with cancelled context returned nil error")
	}
	if err := store.Update(ctx, "sess-1", turnPatch("q", "a")); err == nil {
		t.Error("Update() with cancelled context returned nil error")
	}
}

func TestSessionStoreClose(t *testing.T) {
	store := NewSessionStore(time.Minute, time.Hour, 10)
	ctx := context.Background()

	if err := store.Update(ctx, "sess-1", turnPatch("q", "a")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	store.Close()

	// Calls after Close degrade to no-ops instead of blocking.
	if err := store.Update(ctx, "sess-1", turnPatch("late", "late")); err != nil {
		t.Errorf("Update() after Close error = %v", err)
	}
	if _, err := store.Get(ctx, "sess-1"); err != nil {
		t.Errorf("Get() after Close error = %v", err)
	}
}
