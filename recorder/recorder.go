// Package recorder drives a recording session: it starts the frame, audio
// and input producers, stops them with a bounded join and hands their
// buffers to the finalizer.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"go2tv.app/screenrec/audio"
	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/finalize"
	"go2tv.app/screenrec/interaction"
	"go2tv.app/screenrec/internal/clock"
)

const (
	defaultJoinTimeout = 2 * time.Second
	staleTempAge       = 12 * time.Hour
)

// Artifacts are the output paths of a finalized session; empty means none.
type Artifacts = finalize.Artifacts

// Finalizer consumes the buffers of a stopped session.
type Finalizer interface {
	Finalize(ctx context.Context, in finalize.Input) (finalize.Artifacts, error)
}

type Options struct {
	OutputDir string
	FPS       float64
	// MaxConsecutiveFailures ends capture after that many provider errors in
	// a row.
	MaxConsecutiveFailures int
	// MaxBufferBytes caps buffered frames. Zero is unbounded.
	MaxBufferBytes uint64

	AudioEnabled bool
	AudioFormat  audio.Format

	InputEnabled bool
	Input        interaction.Options

	// JoinTimeout bounds how long Stop waits for each producer.
	JoinTimeout time.Duration
}

// Deps are the platform collaborators. OpenCapture is required.
type Deps struct {
	OpenCapture    func() (capture.Provider, error)
	AudioDevice    audio.Device
	NewInputSource func() interaction.Source
	Finalizer      Finalizer
	Clock          clock.Clock
}

// Session describes the current or most recent recording.
type Session struct {
	ID           string
	StartedAt    time.Time
	State        State
	OutputDir    string
	AudioEnabled bool
	Degraded     []Reason
	// Failure is set once the session ends in Failed.
	Failure Reason
}

type Recorder struct {
	opts Options
	deps Deps

	mu      sync.Mutex
	session Session

	provider capture.Provider
	frames   *capture.Producer
	audio    *audio.Producer
	input    *interaction.Recorder
	cancel   context.CancelFunc

	fatal chan error
}

func New(opts Options, deps Deps) *Recorder {
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}
	if opts.AudioFormat.SampleRate <= 0 || opts.AudioFormat.Channels <= 0 {
		opts.AudioFormat = audio.NewFormat(opts.AudioFormat.SampleRate, opts.AudioFormat.Channels)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Finalizer == nil {
		deps.Finalizer = finalize.New(finalize.Options{OutputDir: opts.OutputDir})
	}
	opts.Input.Clock = deps.Clock
	return &Recorder{
		opts:    opts,
		deps:    deps,
		session: Session{State: Idle, OutputDir: opts.OutputDir},
		fatal:   make(chan error, 1),
	}
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.State
}

// Session returns a snapshot of the current or last session.
func (r *Recorder) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.session
	s.Degraded = slices.Clone(s.Degraded)
	return s
}

// Fatal delivers a capture failure while recording so the caller can stop
// early. Stop must still be called.
func (r *Recorder) Fatal() <-chan error { return r.fatal }

// Start begins a new session and returns once every producer is running.
// Audio and input failures degrade the session instead of aborting it.
// The session reads as Starting while capture opens, which may wait on a
// permission prompt; the lock is not held during that time.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	switch r.session.State {
	case Starting, Recording, Stopping:
		r.mu.Unlock()
		return ErrSessionActive
	}
	sess := Session{
		ID:        uuid.NewString(),
		State:     Starting,
		OutputDir: r.opts.OutputDir,
	}
	r.session = sess
	r.mu.Unlock()

	log := slog.With("session", sess.ID)

	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return r.fail(sess, &Error{Reason: ReasonOutputDir, Err: err})
	}
	if n := finalize.CleanupStaleTemps(r.opts.OutputDir, staleTempAge); n > 0 {
		log.Info("removed stale temp files", "count", n)
	}

	if r.deps.OpenCapture == nil {
		return r.fail(sess, &Error{Reason: ReasonCaptureUnavailable, Err: capture.ErrNotImplemented})
	}
	provider, err := r.deps.OpenCapture()
	if err != nil {
		return r.fail(sess, &Error{Reason: ReasonCaptureUnavailable, Err: err})
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess.StartedAt = r.deps.Clock.Now()

	frames := capture.NewProducer(provider, capture.ProducerOptions{
		FPS:                    r.opts.FPS,
		MaxConsecutiveFailures: r.opts.MaxConsecutiveFailures,
		MaxBufferBytes:         r.opts.MaxBufferBytes,
		Clock:                  r.deps.Clock,
	})
	select {
	case <-r.fatal:
	default:
	}
	frames.Start(runCtx, sess.StartedAt)
	go r.relayFatal(runCtx, frames.Fatal())

	var ap *audio.Producer
	if r.opts.AudioEnabled {
		ap = audio.NewProducer(r.deps.AudioDevice, r.opts.AudioFormat)
		if err := ap.Start(); err != nil {
			log.Warn("recording without audio", "err", err)
			sess.Degraded = append(sess.Degraded, ReasonAudioUnavailable)
			ap = nil
		} else {
			sess.AudioEnabled = true
		}
	}

	var ir *interaction.Recorder
	if r.opts.InputEnabled {
		var src interaction.Source
		if r.deps.NewInputSource != nil {
			src = r.deps.NewInputSource()
		}
		ir = interaction.New(src, r.opts.Input)
		if err := ir.Start(runCtx); err != nil {
			log.Warn("input hooks unavailable, interaction log may be partial", "err", err)
			sess.Degraded = append(sess.Degraded, ReasonHooksUnavailable)
		}
	}

	sess.State = Recording
	r.mu.Lock()
	r.session = sess
	r.provider, r.frames, r.audio, r.input, r.cancel = provider, frames, ap, ir, cancel
	r.mu.Unlock()

	w, h := frames.Size()
	log.Info("recording started",
		"provider", provider.Name(),
		"size", fmt.Sprintf("%dx%d", w, h),
		"fps", frames.TargetFPS(),
		"audio", sess.AudioEnabled,
		"input", ir != nil)
	return nil
}

// Stop ends the session, waits a bounded time for each producer and
// finalizes whatever was buffered. With no frames captured the session
// fails and the zero Artifacts is returned; that alone is not an error.
func (r *Recorder) Stop(ctx context.Context) (Artifacts, error) {
	r.mu.Lock()
	if r.session.State != Recording {
		r.mu.Unlock()
		return Artifacts{}, ErrNotRecording
	}
	r.session.State = Stopping
	sess := r.session
	provider, frames, ap, ir, cancel := r.provider, r.frames, r.audio, r.input, r.cancel
	r.provider, r.frames, r.audio, r.input, r.cancel = nil, nil, nil, nil, nil
	r.mu.Unlock()

	log := slog.With("session", sess.ID)

	frames.Stop()
	if ap != nil {
		ap.Stop()
	}
	if ir != nil {
		ir.Stop()
	}

	r.join(log, "frames", frames.Done())
	if ap != nil {
		r.join(log, "audio", ap.Done())
	}
	if ir != nil {
		r.join(log, "input", ir.Done())
	}
	cancel()

	in := finalize.Input{
		SessionID:    sess.ID,
		StartedAt:    sess.StartedAt,
		Frames:       frames.Frames(),
		TargetFPS:    frames.TargetFPS(),
		AudioEnabled: ap != nil,
		SampleRate:   r.opts.AudioFormat.SampleRate,
		Channels:     r.opts.AudioFormat.Channels,
	}
	if ap != nil {
		in.Audio = ap.Blocks()
	}
	if ir != nil {
		in.Callback, in.Polled = ir.Events()
	}
	if frames.BudgetExceeded() {
		sess.Degraded = append(sess.Degraded, ReasonFrameBudget)
	}
	if err := provider.Close(); err != nil {
		log.Warn("capture provider close failed", "err", err)
	}

	captureErr := frames.Err()
	if len(in.Frames) == 0 {
		if captureErr != nil {
			return Artifacts{}, r.fail(sess, &Error{Reason: ReasonCaptureFailed, Err: captureErr})
		}
		log.Warn("no frames captured, nothing saved")
		_ = r.fail(sess, &Error{Reason: ReasonNoFrames})
		return Artifacts{}, nil
	}

	log.Info("recording stopped", "frames", len(in.Frames), "audio_blocks", len(in.Audio),
		"events", len(in.Callback)+len(in.Polled))

	art, err := r.deps.Finalizer.Finalize(ctx, in)
	switch {
	case err != nil:
		return art, r.fail(sess, &Error{Reason: ReasonFinalize, Err: err})
	case captureErr != nil:
		return art, r.fail(sess, &Error{Reason: ReasonCaptureFailed, Err: captureErr})
	}

	sess.State = Finalized
	r.setSession(sess)
	log.Info("recording saved", "video", art.VideoPath, "interactions", art.InteractionsPath)
	return art, nil
}

func (r *Recorder) fail(sess Session, err *Error) error {
	sess.State = Failed
	sess.Failure = err.Reason
	r.setSession(sess)
	return err
}

func (r *Recorder) setSession(s Session) {
	r.mu.Lock()
	r.session = s
	r.mu.Unlock()
}

// join waits for done up to JoinTimeout. A producer that misses the
// deadline is left running; its late output is discarded by the hand-off.
func (r *Recorder) join(log *slog.Logger, name string, done <-chan struct{}) {
	t := time.NewTimer(r.opts.JoinTimeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		log.Warn("producer did not stop in time, continuing without it", "producer", name, "timeout", r.opts.JoinTimeout)
	}
}

func (r *Recorder) relayFatal(ctx context.Context, fatal <-chan error) {
	select {
	case <-ctx.Done():
	case err := <-fatal:
		if errors.Is(err, capture.ErrCaptureFailed) {
			slog.Error("screen capture stopped", "err", err)
		}
		select {
		case r.fatal <- err:
		default:
		}
	}
}
