package practice

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/minios-linux/zhdrill/breakdown"
)

// recordingPlayer records every call. When block is set, Play waits for
// ctx to be cancelled.
type recordingPlayer struct {
	mu      sync.Mutex
	played  []string
	stops   int
	block   bool
	failOn  string
	started chan string
}

func (p *recordingPlayer) Play(ctx context.Context, text string) error {
	p.mu.Lock()
	p.played = append(p.played, text)
	p.mu.Unlock()
	if p.started != nil {
		p.started <- text
	}
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if text == p.failOn {
		return errors.New("no audio device")
	}
	return nil
}

func (p *recordingPlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *recordingPlayer) calls() ([]string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...), p.stops
}

// recordingSleep returns immediately and records each requested duration.
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func parts(texts ...string) []breakdown.WordSet {
	out := make([]breakdown.WordSet, len(texts))
	for i, t := range texts {
		out[i] = breakdown.WordSet{Mandarin: t}
	}
	return out
}

func TestScheduler_OrderAndWaits(t *testing.T) {
	player := &recordingPlayer{}
	sleeper := &recordingSleep{}
	s := New(player, Options{Sleep: sleeper.sleep})

	sess, err := s.Start(context.Background(), parts("p0", "p1"), 2, time.Second)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.ID == "" || sess.CurrentRepetition != 1 {
		t.Errorf("initial session = %+v", sess)
	}

	final := s.Wait()

	played, stops := player.calls()
	if want := []string{"p0", "p1", "p0", "p1"}; !reflect.DeepEqual(played, want) {
		t.Errorf("played %q, want %q", played, want)
	}
	if stops != 4 {
		t.Errorf("got %d stops, want one before each play", stops)
	}
	if want := []time.Duration{time.Second, 2 * time.Second, time.Second}; !reflect.DeepEqual(sleeper.waits, want) {
		t.Errorf("waits %v, want %v", sleeper.waits, want)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}
	if final.CurrentRepetition != 0 || final.CurrentIndex != -1 || final.Cancelled {
		t.Errorf("final session = %+v", final)
	}
}

func TestScheduler_OnSpeakPositions(t *testing.T) {
	type pos struct{ rep, index int }
	var got []pos
	s := New(&recordingPlayer{}, Options{
		Sleep: (&recordingSleep{}).sleep,
		OnSpeak: func(sess Session, index int) {
			if sess.CurrentIndex != index {
				t.Errorf("CurrentIndex %d != index %d", sess.CurrentIndex, index)
			}
			if sess.CurrentRepetition < 1 || sess.CurrentRepetition > sess.Repetitions {
				t.Errorf("CurrentRepetition %d out of range", sess.CurrentRepetition)
			}
			got = append(got, pos{sess.CurrentRepetition, index})
		},
	})
	if _, err := s.Start(context.Background(), parts("a", "b"), 2, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	s.Wait()
	want := []pos{{1, 0}, {1, 1}, {2, 0}, {2, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestScheduler_CancelDuringPlayback(t *testing.T) {
	player := &recordingPlayer{block: true, started: make(chan string, 1)}
	sleeper := &recordingSleep{}
	s := New(player, Options{Sleep: sleeper.sleep})

	if _, err := s.Start(context.Background(), parts("p0", "p1", "p2"), 3, time.Second); err != nil {
		t.Fatal(err)
	}
	if got := <-player.started; got != "p0" {
		t.Fatalf("first part = %q", got)
	}
	if s.State() != StateRunning {
		t.Fatalf("state = %v, want running", s.State())
	}

	s.Cancel()

	if s.State() != StateIdle {
		t.Errorf("state after Cancel = %v, want idle", s.State())
	}
	played, stops := player.calls()
	if len(played) != 1 {
		t.Errorf("played %q after cancel, want only p0", played)
	}
	if stops < 2 {
		t.Errorf("got %d stops, want the pre-play stop and the cancel stop", stops)
	}
	if len(sleeper.waits) != 0 {
		t.Errorf("waited %v after cancel", sleeper.waits)
	}
	if snap := s.Snapshot(); !snap.Cancelled {
		t.Error("session should be marked cancelled")
	}
}

func TestScheduler_CancelDuringWait(t *testing.T) {
	player := &recordingPlayer{}
	waiting := make(chan struct{})
	s := New(player, Options{Sleep: func(ctx context.Context, d time.Duration) error {
		close(waiting)
		<-ctx.Done()
		return ctx.Err()
	}})

	if _, err := s.Start(context.Background(), parts("p0", "p1"), 1, time.Hour); err != nil {
		t.Fatal(err)
	}
	<-waiting
	s.Cancel()

	played, _ := player.calls()
	if !reflect.DeepEqual(played, []string{"p0"}) {
		t.Errorf("played %q, want [p0]", played)
	}
}

func TestScheduler_ParentContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	player := &recordingPlayer{block: true, started: make(chan string, 1)}
	s := New(player, Options{})
	if _, err := s.Start(ctx, parts("p0"), 1, time.Second); err != nil {
		t.Fatal(err)
	}
	<-player.started
	cancel()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("drill did not stop after context cancel")
	}
	if !s.Snapshot().Cancelled {
		t.Error("session should be marked cancelled")
	}
}

func TestScheduler_PlaybackErrorIsSwallowed(t *testing.T) {
	player := &recordingPlayer{failOn: "p0"}
	var errs int
	s := New(player, Options{
		Sleep:   (&recordingSleep{}).sleep,
		OnError: func(string, ...any) { errs++ },
	})
	if _, err := s.Start(context.Background(), parts("p0", "p1"), 1, time.Second); err != nil {
		t.Fatal(err)
	}
	s.Wait()
	played, _ := player.calls()
	if !reflect.DeepEqual(played, []string{"p0", "p1"}) {
		t.Errorf("played %q", played)
	}
	if errs != 1 {
		t.Errorf("got %d error reports, want 1", errs)
	}
}

func TestScheduler_StartValidation(t *testing.T) {
	s := New(&recordingPlayer{}, Options{})
	ctx := context.Background()
	if _, err := s.Start(ctx, nil, 1, time.Second); !errors.Is(err, ErrNoParts) {
		t.Errorf("got %v, want ErrNoParts", err)
	}
	if _, err := s.Start(ctx, parts("a"), 0, time.Second); !errors.Is(err, ErrInvalidRepetitions) {
		t.Errorf("got %v, want ErrInvalidRepetitions", err)
	}
	if _, err := s.Start(ctx, parts("a"), 1, 0); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("got %v, want ErrInvalidInterval", err)
	}
}

func TestScheduler_SingleSession(t *testing.T) {
	player := &recordingPlayer{block: true, started: make(chan string, 1)}
	s := New(player, Options{})
	if _, err := s.Start(context.Background(), parts("a"), 1, time.Second); err != nil {
		t.Fatal(err)
	}
	<-player.started
	if _, err := s.Start(context.Background(), parts("b"), 1, time.Second); !errors.Is(err, ErrRunning) {
		t.Errorf("got %v, want ErrRunning", err)
	}
	s.Cancel()

	// A new session can start once the previous one is over.
	player.block = false
	player.started = nil
	if _, err := s.Start(context.Background(), parts("c"), 1, time.Second); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Wait()
}

func TestScheduler_CancelWhenIdle(t *testing.T) {
	s := New(&recordingPlayer{}, Options{})
	s.Cancel()
	if s.State() != StateIdle {
		t.Fatal("expected idle")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed when idle")
	}
}
