// Package capture implements the guided capture state machine: it walks the
// user through the front, sideways and down positions, collects one
// encoding per position and saves the result.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/AlverezYari/poseframe/internal/clock"
	"github.com/AlverezYari/poseframe/internal/domain"
	"github.com/AlverezYari/poseframe/internal/metrics"
	"github.com/AlverezYari/poseframe/internal/persist"
	"github.com/AlverezYari/poseframe/internal/sampler"
	"github.com/AlverezYari/poseframe/internal/verify"
	"github.com/AlverezYari/poseframe/pkg/camera"
	"github.com/google/uuid"
)

const (
	DefaultTransitionDelay = 2 * time.Second
	DefaultSaveDelay       = 3 * time.Second
)

// ErrNothingToRetry is returned by RetryPersist when no failed save is waiting.
var ErrNothingToRetry = errors.New("no failed save to retry")

type Camera interface {
	Acquire(ctx context.Context) (camera.Source, error)
	Release() error
}

type Verifier interface {
	Verify(ctx context.Context, req verify.Request) (domain.Verdict, error)
}

type Persister interface {
	Persist(ctx context.Context, sessionID string, user domain.PersistedUser) (persist.Result, error)
}

type Config struct {
	Camera    Camera
	Verifier  Verifier
	Persister Persister

	Clock   clock.Clock
	Encoder sampler.Encoder
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	SampleInterval  time.Duration
	TransitionDelay time.Duration
	SaveDelay       time.Duration
}

// attempt ties a sampled frame to the session state it was taken in.
// Verdicts are applied only while that state is still current.
type attempt struct {
	run       uint64
	sessionID string
	position  domain.Position
	identity  domain.Identity
}

// Sequencer owns the session. Every mutation happens under mu, whether it
// comes from a public call, a timer or a network completion, so mutations
// never interleave.
type Sequencer struct {
	camera    Camera
	verifier  Verifier
	persister Persister
	clock     clock.Clock
	sampler   *sampler.Sampler
	metrics   *metrics.Metrics
	baseLog   *slog.Logger

	transitionDelay time.Duration
	saveDelay       time.Duration

	// spawn runs network calls off the caller's goroutine.
	spawn func(func())

	// ops serializes Start, Stop, RetryPersist, Close and the end of a save.
	ops sync.Mutex

	mu      sync.Mutex
	log     *slog.Logger
	run     uint64
	pending clock.Timer
	source  camera.Source
	closed  bool

	sessionID         string
	state             State
	identity          domain.Identity
	position          domain.Position
	nextPosition      domain.Position
	recognizing       bool
	saving            bool
	persisting        bool
	persistFailed     bool
	instruction       string
	transitionMessage string
	errorMessage      string
	slots             [domain.SlotCount]domain.Encoding
	userID            string

	subscribers map[chan Snapshot]struct{}
}

func New(cfg Config) *Sequencer {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.TransitionDelay <= 0 {
		cfg.TransitionDelay = DefaultTransitionDelay
	}
	if cfg.SaveDelay <= 0 {
		cfg.SaveDelay = DefaultSaveDelay
	}

	return &Sequencer{
		camera:          cfg.Camera,
		verifier:        cfg.Verifier,
		persister:       cfg.Persister,
		clock:           cfg.Clock,
		sampler:         sampler.New(cfg.Clock, cfg.SampleInterval, cfg.Encoder, cfg.Logger),
		metrics:         cfg.Metrics,
		baseLog:         cfg.Logger,
		log:             cfg.Logger,
		transitionDelay: cfg.TransitionDelay,
		saveDelay:       cfg.SaveDelay,
		spawn:           func(f func()) { go f() },
		state:           StateIdle,
		instruction:     InstructionIdle,
		subscribers:     make(map[chan Snapshot]struct{}),
	}
}

// Start begins a new capture session at the front position. It fails with
// domain.ErrValidation when either name is blank and with
// camera.ErrDeviceUnavailable when the camera cannot be acquired; in both
// cases the current state is left alone and the error message is set.
func (s *Sequencer) Start(ctx context.Context, identity domain.Identity) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		s.mu.Lock()
		s.errorMessage = MessageValidation
		s.publishLocked()
		s.mu.Unlock()
		return err
	}

	src, err := s.camera.Acquire(ctx)
	if err != nil {
		s.mu.Lock()
		s.errorMessage = MessageCameraMissing
		s.publishLocked()
		s.mu.Unlock()
		s.baseLog.Warn("camera acquire failed", "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.sessionID = uuid.NewString()
	s.log = s.baseLog.With("session_id", s.sessionID)
	s.identity = identity
	s.slots = [domain.SlotCount]domain.Encoding{}
	s.source = src
	s.state = StateCapturing
	s.position = domain.PositionFront
	s.nextPosition = ""
	s.recognizing = true
	s.saving = false
	s.persisting = false
	s.persistFailed = false
	s.userID = ""
	s.instruction = Prompt(domain.PositionFront)
	s.transitionMessage = ""
	s.errorMessage = ""

	s.sampler.Start(src, s.sampleHandler(s.run))
	s.metrics.CaptureActive.Set(1)
	s.log.Info("capture started", "identity", identity.String())
	s.publishLocked()
	return nil
}

// Stop ends the session from any non-terminal state: the sampler and any
// scheduled transition or save are cancelled and the camera is released
// before Stop returns. Stopping a stopped or completed session does nothing.
func (s *Sequencer) Stop() error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.stop()
}

func (s *Sequencer) stop() error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}

	wasActive := s.state != StateIdle
	s.cancelLocked()
	s.state = StateStopped
	s.nextPosition = ""
	s.recognizing = false
	s.saving = false
	s.persistFailed = false
	s.instruction = InstructionStopped
	s.transitionMessage = ""
	s.source = nil
	s.metrics.CaptureActive.Set(0)
	if wasActive {
		s.metrics.Sessions.WithLabelValues("stopped").Inc()
	}
	s.log.Info("capture stopped")
	s.publishLocked()
	s.mu.Unlock()

	return s.camera.Release()
}

// RetryPersist re-submits the captured encodings after a failed save.
func (s *Sequencer) RetryPersist() error {
	s.ops.Lock()
	s.mu.Lock()
	if !s.saving || !s.persistFailed || s.persisting {
		s.mu.Unlock()
		s.ops.Unlock()
		return ErrNothingToRetry
	}
	s.persistFailed = false
	s.errorMessage = ""
	s.instruction = InstructionSaving
	run := s.run
	s.log.Info("retrying save")
	s.publishLocked()
	s.mu.Unlock()
	s.ops.Unlock()

	// runPersist takes ops itself to finish the session.
	s.spawn(func() { s.runPersist(run) })
	return nil
}

// Close tears the session down for good: it stops any active session,
// releases the camera and closes every subscription.
func (s *Sequencer) Close() error {
	s.ops.Lock()
	defer s.ops.Unlock()

	stopErr := s.stop()
	releaseErr := s.camera.Release()

	s.mu.Lock()
	s.closed = true
	for ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, ch)
	}
	s.mu.Unlock()

	return errors.Join(stopErr, releaseErr)
}

// cancelLocked stops the sampler and any scheduled transition or save, and
// invalidates every attempt issued so far.
func (s *Sequencer) cancelLocked() {
	s.sampler.Stop()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.run++
}

func (s *Sequencer) sampleHandler(run uint64) sampler.Handler {
	return func(p sampler.Payload) {
		s.mu.Lock()
		if run != s.run || s.state != StateCapturing || s.saving {
			s.mu.Unlock()
			return
		}
		a := attempt{
			run:       run,
			sessionID: s.sessionID,
			position:  s.position,
			identity:  s.identity,
		}
		s.mu.Unlock()

		s.metrics.SamplesTaken.Inc()
		image := p.DataURL()
		s.spawn(func() { s.runAttempt(a, image) })
	}
}

func (s *Sequencer) runAttempt(a attempt, image string) {
	started := s.clock.Now()
	verdict, err := s.verifier.Verify(context.Background(), verify.Request{
		SessionID: a.sessionID,
		Image:     image,
		Position:  a.position,
		Identity:  a.identity,
	})
	s.metrics.VerifyDuration.Observe(s.clock.Now().Sub(started).Seconds())
	s.applyVerdict(a, verdict, err)
}

func (s *Sequencer) currentLocked(a attempt) bool {
	return a.run == s.run && s.state == StateCapturing && !s.saving && a.position == s.position
}

func (s *Sequencer) applyVerdict(a attempt, verdict domain.Verdict, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(a) {
		s.metrics.StaleVerdicts.Inc()
		s.log.Debug("discarding stale verdict", "position", a.position, "current", s.position, "state", s.state)
		return
	}

	if err != nil {
		s.metrics.VerifyFailures.Inc()
		s.log.Warn("verification failed", "position", a.position, "error", err)
		if s.errorMessage != MessageVerifyFailed {
			s.errorMessage = MessageVerifyFailed
			s.publishLocked()
		}
		return
	}

	changed := s.errorMessage != ""
	s.errorMessage = ""

	if !verdict.Correct {
		s.metrics.Verdicts.WithLabelValues(string(a.position), "negative").Inc()
		s.log.Debug("position not matched", "position", a.position, "reason", verdict.Error)
		if changed {
			s.publishLocked()
		}
		return
	}
	if !verdict.Accepted() {
		s.metrics.Verdicts.WithLabelValues(string(a.position), "no_encoding").Inc()
		s.log.Warn("correct verdict without encoding", "position", a.position)
		if changed {
			s.publishLocked()
		}
		return
	}

	s.metrics.Verdicts.WithLabelValues(string(a.position), "accepted").Inc()
	idx := a.position.Index()
	if s.slots[idx].Empty() {
		s.slots[idx] = slices.Clone(verdict.Encoding)
		s.metrics.PositionsCaptured.WithLabelValues(string(a.position)).Inc()
		s.log.Info("position captured", "position", a.position, "encoding_len", len(verdict.Encoding))
	}

	switch {
	case s.completeLocked():
		s.beginSaveLocked()
	case verdict.PositionChangeRequired:
		if next, ok := a.position.Next(); ok {
			s.beginTransitionLocked(next)
		}
	}
	s.publishLocked()
}

func (s *Sequencer) completeLocked() bool {
	for _, enc := range s.slots {
		if enc.Empty() {
			return false
		}
	}
	return true
}

func (s *Sequencer) beginTransitionLocked(next domain.Position) {
	s.cancelLocked()
	s.state = StateTransitioning
	s.nextPosition = next
	s.transitionMessage = MessageTransition
	s.log.Info("changing position", "from", s.position, "to", next)

	run := s.run
	s.pending = s.clock.AfterFunc(s.transitionDelay, func() { s.finishTransition(run) })
}

func (s *Sequencer) finishTransition(run uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run != s.run || s.state != StateTransitioning {
		return
	}
	s.pending = nil
	s.state = StateCapturing
	s.position = s.nextPosition
	s.nextPosition = ""
	s.instruction = Prompt(s.position)
	s.transitionMessage = ""
	s.sampler.Start(s.source, s.sampleHandler(s.run))
	s.publishLocked()
}

func (s *Sequencer) beginSaveLocked() {
	s.cancelLocked()
	s.saving = true
	s.instruction = InstructionSaving
	s.transitionMessage = ""
	s.log.Info("all positions captured")

	run := s.run
	s.pending = s.clock.AfterFunc(s.saveDelay, func() {
		s.spawn(func() { s.runPersist(run) })
	})
}

func (s *Sequencer) runPersist(run uint64) {
	s.mu.Lock()
	if run != s.run || !s.saving || s.persisting {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.persisting = true
	sessionID := s.sessionID
	user := domain.PersistedUser{Identity: s.identity}
	for i, enc := range s.slots {
		user.Encodings[i] = slices.Clone(enc)
	}
	s.mu.Unlock()

	result, err := s.persister.Persist(context.Background(), sessionID, user)

	// Holding ops keeps Start out until the camera is released below, so a
	// new session never gets a source that is about to be closed.
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	s.persisting = false
	if run != s.run || !s.saving {
		s.log.Info("save finished after the session moved on", "error", err)
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.persistFailed = true
		s.errorMessage = MessagePersistFailed + persistReason(err)
		s.metrics.Persists.WithLabelValues("failed").Inc()
		s.log.Error("saving user failed", "error", err)
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	s.state = StateComplete
	s.saving = false
	s.recognizing = false
	s.userID = result.UserID
	s.instruction = InstructionComplete + result.UserID
	s.errorMessage = ""
	s.source = nil
	s.metrics.Persists.WithLabelValues("ok").Inc()
	s.metrics.Sessions.WithLabelValues("complete").Inc()
	s.metrics.CaptureActive.Set(0)
	s.log.Info("capture complete", "user_id", result.UserID)
	s.publishLocked()
	s.mu.Unlock()

	if err := s.camera.Release(); err != nil {
		s.log.Warn("camera release failed", "error", err)
	}
}

func persistReason(err error) string {
	var pe *domain.PersistenceError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return err.Error()
}

// Snapshot returns the current session state.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Encodings returns a copy of the three slots in position order. Empty
// slots are nil.
func (s *Sequencer) Encodings() [domain.SlotCount]domain.Encoding {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [domain.SlotCount]domain.Encoding
	for i, enc := range s.slots {
		out[i] = slices.Clone(enc)
	}
	return out
}

func (s *Sequencer) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:         s.sessionID,
		State:             s.state,
		Identity:          s.identity,
		Recognizing:       s.recognizing,
		Saving:            s.saving,
		Instruction:       s.instruction,
		TransitionMessage: s.transitionMessage,
		ErrorMessage:      s.errorMessage,
		UserID:            s.userID,
	}
	if s.state == StateCapturing || s.state == StateTransitioning {
		snap.Position = s.position
		snap.NextPosition = s.nextPosition
	}
	for i, enc := range s.slots {
		snap.Captured[i] = !enc.Empty()
	}
	return snap
}

// Subscribe returns a channel that receives a snapshot after every change.
// Slow readers only see the latest snapshot. The returned function ends
// the subscription.
func (s *Sequencer) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (s *Sequencer) publishLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
