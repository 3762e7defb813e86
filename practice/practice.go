// Package practice runs timed listening drills: it plays every part of a
// phrase breakdown in order, pauses between parts and between rounds, and
// repeats the whole sequence a fixed number of times.
package practice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minios-linux/zhdrill/breakdown"
)

// Defaults for a drill.
const (
	DefaultRepetitions = 5
	DefaultInterval    = 2 * time.Second
)

var (
	ErrRunning            = errors.New("practice: a session is already running")
	ErrNoParts            = errors.New("practice: nothing to practice")
	ErrInvalidRepetitions = errors.New("practice: repetitions must be at least 1")
	ErrInvalidInterval    = errors.New("practice: interval must be positive")
)

// Player speaks text aloud.
//
// Play blocks until playback finishes or ctx is cancelled. Stop cuts off
// any playback in progress and may be called from another goroutine.
type Player interface {
	Play(ctx context.Context, text string) error
	Stop()
}

// State is the scheduler state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Session describes one drill. CurrentRepetition is 1-based while running
// and 0 once the session is over; CurrentIndex is -1 when no part is being
// played.
type Session struct {
	ID                string
	Parts             []breakdown.WordSet
	Repetitions       int
	Interval          time.Duration
	CurrentRepetition int
	CurrentIndex      int
	Cancelled         bool
}

// Options configures a Scheduler. All hooks are called from the drill
// goroutine and must not call Cancel or Wait.
type Options struct {
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnSpeak is called right before a part is played.
	OnSpeak func(s Session, index int)
	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
	// OnError emits playback errors, which never stop a drill.
	OnError func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// Scheduler runs at most one drill at a time.
type Scheduler struct {
	player Player
	opts   Options

	mu      sync.Mutex
	state   State
	session Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns an idle Scheduler driving player.
func New(player Player, opts Options) *Scheduler {
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	done := make(chan struct{})
	close(done)
	return &Scheduler{
		player:  player,
		opts:    opts,
		session: Session{CurrentIndex: -1},
		done:    done,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start begins a drill in its own goroutine and returns immediately.
// The drill stops early when ctx is cancelled or Cancel is called.
func (s *Scheduler) Start(ctx context.Context, parts []breakdown.WordSet, repetitions int, interval time.Duration) (Session, error) {
	switch {
	case len(parts) == 0:
		return Session{}, ErrNoParts
	case repetitions < 1:
		return Session{}, ErrInvalidRepetitions
	case interval <= 0:
		return Session{}, ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return Session{}, ErrRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.session = Session{
		ID:                uuid.NewString(),
		Parts:             append([]breakdown.WordSet(nil), parts...),
		Repetitions:       repetitions,
		Interval:          interval,
		CurrentRepetition: 1,
		CurrentIndex:      -1,
	}
	s.state = StateRunning
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx, s.session, s.done)
	return s.snapshotLocked(), nil
}

func (s *Scheduler) run(ctx context.Context, sess Session, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.state = StateIdle
		s.session.CurrentRepetition = 0
		s.session.CurrentIndex = -1
		if ctx.Err() != nil {
			s.session.Cancelled = true
		}
		s.cancel()
		s.mu.Unlock()
		close(done)
	}()

	s.opts.log("Practice %s: %d parts × %d", sess.ID, len(sess.Parts), sess.Repetitions)

	last := len(sess.Parts) - 1
	for rep := 1; rep <= sess.Repetitions; rep++ {
		for i, part := range sess.Parts {
			if ctx.Err() != nil {
				return
			}
			snap := s.setPosition(rep, i)
			s.player.Stop()
			if s.opts.OnSpeak != nil {
				s.opts.OnSpeak(snap, i)
			}
			if err := s.player.Play(ctx, part.Mandarin); err != nil && ctx.Err() == nil {
				s.opts.logError("Playback of %q failed: %v", part.Mandarin, err)
			}
			if ctx.Err() != nil {
				return
			}
			if i < last {
				if s.opts.Sleep(ctx, sess.Interval) != nil {
					return
				}
			}
		}
		if rep < sess.Repetitions {
			s.setPosition(rep, -1)
			if s.opts.Sleep(ctx, 2*sess.Interval) != nil {
				return
			}
		}
	}
}

func (s *Scheduler) setPosition(rep, index int) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.CurrentRepetition = rep
	s.session.CurrentIndex = index
	return s.snapshotLocked()
}

// Cancel stops the running drill, cuts off playback and waits for the
// drill goroutine to exit. It is a no-op when idle.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.session.Cancelled = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	s.player.Stop()
	<-done
}

// Done returns a channel closed when the current drill ends. It is
// already closed when idle.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the current drill ends and returns its final state.
func (s *Scheduler) Wait() Session {
	<-s.Done()
	return s.Snapshot()
}

// State returns the scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the current or last session.
func (s *Scheduler) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() Session {
	snap := s.session
	snap.Parts = append([]breakdown.WordSet(nil), s.session.Parts...)
	return snap
}
