package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"securechat/internal/feed"
	"securechat/internal/models"
)

var ErrAlreadyMounted = errors.New("session already mounted")

type State int

const (
	Idle State = iota
	Submitting
)

func (s State) String() string {
	if s == Submitting {
		return "submitting"
	}
	return "idle"
}

// Session is one open chat page. Its subscription goroutine is the only
// writer of the rendered list and swaps it whole on every snapshot.
type Session struct {
	svc      *Service
	onUpdate func([]models.MessageView)

	views atomic.Pointer[[]models.MessageView]

	mu    sync.Mutex
	input string
	state State

	sub  *feed.Subscription
	pump sync.WaitGroup
}

// NewSession returns an unmounted session. onUpdate, if set, runs on the
// subscription goroutine after every snapshot; it is where a page scrolls
// to the newest message. It must not call Unmount.
func (s *Service) NewSession(onUpdate func([]models.MessageView)) *Session {
	sess := &Session{svc: s, onUpdate: onUpdate}
	empty := []models.MessageView{}
	sess.views.Store(&empty)
	return sess
}

// Mount opens the live subscription. Pair every successful Mount with a
// deferred Unmount.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return ErrAlreadyMounted
	}
	sub, err := feed.Subscribe(ctx, s.svc.store, s.svc.log)
	if err != nil {
		return err
	}
	s.sub = sub

	s.pump.Add(1)
	go func() {
		defer s.pump.Done()
		for snap := range sub.C() {
			views := s.svc.Render(snap.Messages)
			s.views.Store(&views)
			if s.onUpdate != nil {
				s.onUpdate(views)
			}
		}
	}()
	return nil
}

// Unmount cancels the subscription. When it returns, onUpdate will not run
// again.
func (s *Session) Unmount() {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub == nil {
		return
	}
	sub.Close()
	s.pump.Wait()
}

func (s *Session) Messages() []models.MessageView {
	return *s.views.Load()
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CanSubmit mirrors the Send button: enabled only for non-blank input.
func (s *Session) CanSubmit() bool {
	return strings.TrimSpace(s.Input()) != ""
}

// Submit sends the current input. Blank input, or a submit already in
// flight, is a no-op that returns nil and keeps the input. On success the
// input is cleared; on failure it is kept and the error is returned.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	input := s.input
	if strings.TrimSpace(input) == "" || s.state == Submitting {
		s.mu.Unlock()
		return nil
	}
	s.state = Submitting
	s.mu.Unlock()

	_, err := s.svc.Send(ctx, input)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	if err != nil {
		return err
	}
	// keep anything typed while the write was in flight
	if s.input == input {
		s.input = ""
	}
	return nil
}
