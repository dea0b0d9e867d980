package memory

import (
	"context"
	"time"

	"ai-answer-engine-be/pkg/pipeline/executor"
	"ai-answer-engine-be/pkg/pipeline/state"
)

// SessionStore keeps conversation memory in process. A single goroutine owns
// the session map; callers talk to it over a command channel, so concurrent
// turns of the same session can never interleave a read-merge-write. Expired
// sessions are swept on a ticker inside the same goroutine.
type SessionStore struct {
	commands chan sessionCommand
	stop     chan struct{}
	ttl      time.Duration
	maxTurns int
}

type sessionEntry struct {
	session   state.SessionState
	expiresAt time.Time
}

type sessionCommand struct {
	get    *sessionGet
	update *sessionUpdate
	remove string
}

type sessionGet struct {
	id    string
	reply chan *state.SessionState
}

type sessionUpdate struct {
	id    string
	patch state.SessionPatch
	done  chan struct{}
}

var _ executor.SessionStore = &SessionStore{}

func NewSessionStore(ttl, sweepInterval time.Duration, maxTurns int) *SessionStore {
	s := &SessionStore{
		commands: make(chan sessionCommand, 64),
		stop:     make(chan struct{}),
		ttl:      ttl,
		maxTurns: maxTurns,
	}
	go s.run(sweepInterval)
	return s
}

func (s *SessionStore) run(sweepInterval time.Duration) {
	sessions := make(map[string]*sessionEntry)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-s.commands:
			s.apply(sessions, cmd)
		case now := <-ticker.C:
			for id, e := range sessions {
				if now.After(e.expiresAt) {
					delete(sessions, id)
				}
			}
		case <-s.stop:
			return
		}
	}
}

func (s *SessionStore) apply(sessions map[string]*sessionEntry, cmd sessionCommand) {
	switch {
	case cmd.get != nil:
		var out *state.SessionState
		if e, found := sessions[cmd.get.id]; found && time.Now().Before(e.expiresAt) {
			// Copy out so callers never alias the map the goroutine owns.
			copied := e.session
			copied.Thread = append([]state.SessionTurn(nil), e.session.Thread...)
			out = &copied
		}
		cmd.get.reply <- out

	case cmd.update != nil:
		e, found := sessions[cmd.update.id]
		if !found || time.Now().After(e.expiresAt) {
			e = &sessionEntry{session: state.SessionState{SessionID: cmd.update.id}}
			sessions[cmd.update.id] = e
		}
		e.session.Apply(cmd.update.patch, s.maxTurns)
		e.expiresAt = time.Now().Add(s.ttl)
		close(cmd.update.done)

	case cmd.remove != "":
		delete(sessions, cmd.remove)
	}
}

func (s *SessionStore) Get(ctx context.Context, id string) (*state.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply := make(chan *state.SessionState, 1)
	select {
	case s.commands <- sessionCommand{get: &sessionGet{id: id, reply: reply}}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stop:
		return nil, nil
	}
	select {
	case sess := <-reply:
		return sess, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stop:
		return nil, nil
	}
}

func (s *SessionStore) Update(ctx context.Context, id string, patch state.SessionPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	select {
	case s.commands <- sessionCommand{update: &sessionUpdate{id: id, patch: patch, done: done}}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stop:
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stop:
		return nil
	}
}

func (s *SessionStore) Delete(id string) {
	select {
	case s.commands <- sessionCommand{remove: id}:
	case <-s.stop:
	}
}

// Close stops the owning goroutine. Pending commands are dropped.
func (s *SessionStore) Close() {
	close(s.stop)
}
