package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"go2tv.app/screenrec/audio"
	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/finalize"
	"go2tv.app/screenrec/interaction"
	"go2tv.app/screenrec/internal/clock"
)

var epoch = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

type fakeProvider struct {
	capture func(n int) (*capture.Image, error)

	mu     sync.Mutex
	calls  int
	closed int
}

func (p *fakeProvider) Name() string     { return "fake" }
func (p *fakeProvider) Size() (int, int) { return 4, 2 }

func (p *fakeProvider) CaptureFrame() (*capture.Image, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()
	if p.capture != nil {
		return p.capture(n)
	}
	return capture.NewImage(4, 2), nil
}

func (p *fakeProvider) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return nil
}

type fakeStream struct {
	onBlock func([]int16)
	blocks  [][]int16
}

func (s *fakeStream) Start() error {
	for _, b := range s.blocks {
		s.onBlock(b)
	}
	return nil
}

func (s *fakeStream) Close() error { return nil }

type fakeDevice struct {
	openErr error
	blocks  [][]int16
}

func (d *fakeDevice) Open(_ audio.Format, onBlock func([]int16)) (audio.Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &fakeStream{onBlock: onBlock, blocks: d.blocks}, nil
}

type fakeSource struct {
	startErr error

	mu    sync.Mutex
	emit  func(interaction.RawEvent)
	stops int
}

func (s *fakeSource) Start(emit func(interaction.RawEvent)) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.emit = emit
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

func (s *fakeSource) Position() (int, int, error) { return 1, 2, nil }

func (s *fakeSource) send(ev interaction.RawEvent) {
	s.mu.Lock()
	emit := s.emit
	s.mu.Unlock()
	emit(ev)
}

type fakeFinalizer struct {
	err error

	mu     sync.Mutex
	inputs []finalize.Input
}

func (f *fakeFinalizer) Finalize(_ context.Context, in finalize.Input) (finalize.Artifacts, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	return finalize.Artifacts{VideoPath: "recording.mp4", InteractionsPath: "interactions.json"}, f.err
}

func (f *fakeFinalizer) calls() []finalize.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.inputs)
}

type harness struct {
	rec      *Recorder
	clock    *clock.Fake
	provider *fakeProvider
	fin      *fakeFinalizer
}

func newHarness(t *testing.T, opts Options, deps Deps) *harness {
	t.Helper()
	h := &harness{
		clock:    clock.NewFake(epoch),
		provider: &fakeProvider{},
		fin:      &fakeFinalizer{},
	}
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	if opts.FPS == 0 {
		opts.FPS = 10
	}
	if deps.Clock == nil {
		deps.Clock = h.clock
	}
	if deps.OpenCapture == nil {
		deps.OpenCapture = func() (capture.Provider, error) { return h.provider, nil }
	}
	if deps.Finalizer == nil {
		deps.Finalizer = h.fin
	} else if f, ok := deps.Finalizer.(*fakeFinalizer); ok {
		h.fin = f
	}
	h.rec = New(opts, deps)
	return h
}

func TestRecorder_FullSession(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	h := newHarness(t, Options{AudioEnabled: true, InputEnabled: true}, Deps{
		AudioDevice:    &fakeDevice{blocks: [][]int16{{1, 2, 3, 4}}},
		NewInputSource: func() interaction.Source { return src },
	})

	if err := h.rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.rec.State(); got != Recording {
		t.Fatalf("state = %s, want recording", got)
	}

	// Capture loop and pointer poll both asleep; one interval later both run
	// once more.
	h.clock.BlockUntil(2)
	h.clock.Advance(100 * time.Millisecond)
	h.clock.BlockUntil(2)
	src.send(interaction.RawEvent{Kind: interaction.RawKeyDown, Key: "a"})

	art, err := h.rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if art.VideoPath != "recording.mp4" || art.InteractionsPath != "interactions.json" {
		t.Errorf("artifacts = %+v", art)
	}

	sess := h.rec.Session()
	if sess.State != Finalized || !sess.AudioEnabled || len(sess.Degraded) != 0 {
		t.Errorf("session = %+v", sess)
	}

	calls := h.fin.calls()
	if len(calls) != 1 {
		t.Fatalf("finalizer called %d times", len(calls))
	}
	in := calls[0]
	if in.SessionID != sess.ID || !in.StartedAt.Equal(epoch) || in.TargetFPS != 10 {
		t.Errorf("input header = %s %v %v", in.SessionID, in.StartedAt, in.TargetFPS)
	}
	if len(in.Frames) != 2 || in.Frames[0].Elapsed != 0 || in.Frames[1].Elapsed != 100*time.Millisecond {
		t.Errorf("frames = %d, elapsed %v", len(in.Frames), elapsedOf(in.Frames))
	}
	if !in.AudioEnabled || len(in.Audio) != 1 || in.SampleRate != 44100 || in.Channels != 2 {
		t.Errorf("audio = enabled %v, %d blocks, %d Hz x %d", in.AudioEnabled, len(in.Audio), in.SampleRate, in.Channels)
	}
	if len(in.Callback) != 1 || len(in.Polled) != 1 {
		t.Errorf("events = %d callback, %d polled", len(in.Callback), len(in.Polled))
	}
	if h.provider.closed != 1 {
		t.Errorf("provider closed %d times", h.provider.closed)
	}
	if src.stops != 1 {
		t.Errorf("input source stopped %d times", src.stops)
	}
}

func elapsedOf(frames []capture.Frame) []time.Duration {
	out := make([]time.Duration, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Elapsed)
	}
	return out
}

func TestRecorder_StartStopGuards(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, Deps{})

	if art, err := h.rec.Stop(context.Background()); !errors.Is(err, ErrNotRecording) || art != (Artifacts{}) {
		t.Fatalf("Stop while idle = %+v, %v", art, err)
	}

	if err := h.rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clock.BlockUntil(1)
	first := h.rec.Session().ID
	if err := h.rec.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Start = %v, want ErrSessionActive", err)
	}

	if _, err := h.rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if art, err := h.rec.Stop(context.Background()); !errors.Is(err, ErrNotRecording) || art != (Artifacts{}) {
		t.Fatalf("second Stop = %+v, %v", art, err)
	}
	if len(h.fin.calls()) != 1 {
		t.Errorf("second Stop reached the finalizer")
	}

	if err := h.rec.Start(context.Background()); err != nil {
		t.Fatalf("restart after finalize: %v", err)
	}
	h.clock.BlockUntil(1)
	if h.rec.Session().ID == first {
		t.Error("restart reused the session id")
	}
	if _, err := h.rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRecorder_NoFrames(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, Deps{})
	h.provider.capture = func(int) (*capture.Image, error) { return nil, nil }

	if err := h.rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clock.BlockUntil(1)

	art, err := h.rec.Stop(context.Background())
	if err != nil || art != (Artifacts{}) {
		t.Fatalf("Stop = %+v, %v; want zero artifacts and nil", art, err)
	}
	sess := h.rec.Session()
	if sess.State != Failed || sess.Failure != ReasonNoFrames {
		t.Errorf("session = %s/%s, want failed/no_frames", sess.State, sess.Failure)
	}
	if len(h.fin.calls()) != 0 {
		t.Error("finalizer should not run without frames")
	}
}

func TestRecorder_CaptureUnavailable(t *testing.T) {
	t.Parallel()

	openErr := errors.New("no display")
	fails := true
	h := newHarness(t, Options{}, Deps{})
	h.rec.deps.OpenCapture = func() (capture.Provider, error) {
		if fails {
			return nil, openErr
		}
		return h.provider, nil
	}

	err := h.rec.Start(context.Background())
	if !errors.Is(err, openErr) {
		t.Fatalf("Start = %v, want wrapped open error", err)
	}
	if reason, ok := ReasonOf(err); !ok || reason != ReasonCaptureUnavailable {
		t.Errorf("reason = %q", reason)
	}
	if h.rec.State() != Failed {
		t.Errorf("state = %s, want failed", h.rec.State())
	}

	fails = false
	if err := h.rec.Start(context.Background()); err != nil {
		t.Fatalf("Start after failure: %v", err)
	}
	if _, err := h.rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRecorder_DegradedProducers(t *testing.T) {
	t.Parallel()

	src := &fakeSource{startErr: errors.New("permission denied")}
	h := newHarness(t, Options{AudioEnabled: true, InputEnabled: true}, Deps{
		AudioDevice:    &fakeDevice{openErr: errors.New("no input device")},
		NewInputSource: func() interaction.Source { return src },
	})

	if err := h.rec.Start(context.Background()); err != nil {
		t.Fatalf("Start must not fail on audio or hooks: %v", err)
	}
	h.clock.BlockUntil(2)
	sess := h.rec.Session()
	if sess.AudioEnabled {
		t.Error("audio should be disabled")
	}
	for _, want := range []Reason{ReasonAudioUnavailable, ReasonHooksUnavailable} {
		if !slices.Contains(sess.Degraded, want) {
			t.Errorf("degraded = %v, missing %s", sess.Degraded, want)
		}
	}

	if _, err := h.rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	in := h.fin.calls()[0]
	if in.AudioEnabled || len(in.Audio) != 0 {
		t.Errorf("finalizer saw audio: enabled=%v blocks=%d", in.AudioEnabled, len(in.Audio))
	}
	if h.rec.State() != Finalized {
		t.Errorf("state = %s", h.rec.State())
	}
}

func TestRecorder_CaptureFailureSalvagesFrames(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{MaxConsecutiveFailures: 2}, Deps{Clock: clock.NewAutoFake(epoch)})
	h.provider.capture = func(n int) (*capture.Image, error) {
		if n <= 2 {
			return capture.NewImage(4, 2), nil
		}
		return nil, errors.New("device lost")
	}

	if err := h.rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case err := <-h.rec.Fatal():
		if !errors.Is(err, capture.ErrCaptureFailed) {
			t.Errorf("fatal = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no fatal capture error delivered")
	}

	art, err := h.rec.Stop(context.Background())
	if reason, _ := ReasonOf(err); reason != ReasonCaptureFailed {
		t.Fatalf("Stop error = %v, want capture_failed", err)
	}
	if art.VideoPath == "" {
		t.Error("buffered frames were not finalized")
	}
	if got := len(h.fin.calls()[0].Frames); got != 2 {
		t.Errorf("finalized %d frames, want 2", got)
	}
	if h.rec.State() != Failed {
		t.Errorf("state = %s, want failed", h.rec.State())
	}
}

func TestRecorder_HungProducerIsNotAwaited(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	h := newHarness(t, Options{JoinTimeout: 50 * time.Millisecond}, Deps{})
	h.provider.capture = func(n int) (*capture.Image, error) {
		if n == 2 {
			close(entered)
			<-release
		}
		return capture.NewImage(4, 2), nil
	}

	if err := h.rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clock.BlockUntil(1)
	h.clock.Advance(100 * time.Millisecond)
	<-entered

	done := make(chan struct{})
	var art Artifacts
	var err error
	go func() {
		defer close(done)
		art, err = h.rec.Stop(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a hung producer")
	}
	if err != nil || art.VideoPath == "" {
		t.Fatalf("Stop = %+v, %v", art, err)
	}
	if got := len(h.fin.calls()[0].Frames); got != 1 {
		t.Errorf("finalized %d frames, want the 1 buffered before the hang", got)
	}
}

func TestRecorder_FinalizerError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, Deps{Finalizer: &fakeFinalizer{err: finalize.ErrEncode}})
	if err := h.rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clock.BlockUntil(1)

	art, err := h.rec.Stop(context.Background())
	if !errors.Is(err, finalize.ErrEncode) {
		t.Fatalf("Stop error = %v, want ErrEncode", err)
	}
	if reason, _ := ReasonOf(err); reason != ReasonFinalize {
		t.Errorf("reason = %q", reason)
	}
	if art.InteractionsPath == "" {
		t.Error("partial artifacts dropped")
	}
	if h.rec.State() != Failed {
		t.Errorf("state = %s", h.rec.State())
	}
}

func TestRecorder_StartingDoesNotHoldLock(t *testing.T) {
	t.Parallel()

	opening := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, Options{}, Deps{})
	h.rec.deps.OpenCapture = func() (capture.Provider, error) {
		close(opening)
		<-release
		return h.provider, nil
	}

	started := make(chan error, 1)
	go func() { started <- h.rec.Start(context.Background()) }()
	<-opening

	tests := []struct {
		name  string
		check func(t *testing.T)
	}{
		{name: "state", check: func(t *testing.T) {
			if got := h.rec.State(); got != Starting {
				t.Errorf("state = %s, want starting", got)
			}
		}},
		{name: "session id visible", check: func(t *testing.T) {
			if h.rec.Session().ID == "" {
				t.Error("starting session has no id")
			}
		}},
		{name: "second start", check: func(t *testing.T) {
			if err := h.rec.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
				t.Errorf("Start while starting = %v, want ErrSessionActive", err)
			}
		}},
		{name: "stop", check: func(t *testing.T) {
			if _, err := h.rec.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
				t.Errorf("Stop while starting = %v, want ErrNotRecording", err)
			}
		}},
	}
	// Each call returns while OpenCapture is still blocked.
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t)
		})
	}

	close(release)
	if err := <-started; err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.rec.State(); got != Recording {
		t.Fatalf("state = %s, want recording", got)
	}
	h.clock.BlockUntil(1)
	if _, err := h.rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// fileEncoder stands in for ffmpeg's encode step by writing the target.
type fileEncoder struct{ frames int }

func (e *fileEncoder) Encode(_ context.Context, path string, frames []capture.Frame, _ float64) error {
	e.frames = len(frames)
	return os.WriteFile(path, []byte("video"), 0o644)
}

// muxRunner writes the last argument, which is ffmpeg's output path.
type muxRunner struct{ calls int }

func (r *muxRunner) Run(_ context.Context, _ string, args []string, stdin io.Reader) error {
	r.calls++
	if stdin != nil {
		if _, err := io.Copy(io.Discard, stdin); err != nil {
			return err
		}
	}
	return os.WriteFile(args[len(args)-1], []byte("muxed"), 0o644)
}

func TestRecorder_FinalizeWritesArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	enc, runner := &fileEncoder{}, &muxRunner{}
	h := newHarness(t, Options{OutputDir: dir, AudioEnabled: true}, Deps{
		AudioDevice: &fakeDevice{blocks: [][]int16{{1, 2, 3, 4}}},
		Finalizer: finalize.New(finalize.Options{
			OutputDir: dir,
			Platform:  "Linux",
			Runner:    runner,
			Encoder:   enc,
		}),
	})

	if err := h.rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clock.BlockUntil(1)
	h.clock.Advance(100 * time.Millisecond)
	h.clock.BlockUntil(1)

	art, err := h.rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if filepath.Dir(art.VideoPath) != dir || filepath.Dir(art.InteractionsPath) != dir {
		t.Fatalf("artifacts outside output dir: %+v", art)
	}

	video, err := os.ReadFile(art.VideoPath)
	if err != nil {
		t.Fatalf("video missing on disk: %v", err)
	}
	if string(video) != "muxed" || runner.calls != 1 || enc.frames != 2 {
		t.Errorf("video = %q after %d mux runs, %d frames encoded", video, runner.calls, enc.frames)
	}

	data, err := os.ReadFile(art.InteractionsPath)
	if err != nil {
		t.Fatalf("interaction log missing on disk: %v", err)
	}
	var doc struct {
		RecordingData struct {
			Platform    string `json:"platform"`
			SessionID   string `json:"session_id"`
			TotalFrames int    `json:"total_frames"`
		} `json:"recording_data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("interaction log: %v", err)
	}
	rd := doc.RecordingData
	if rd.Platform != "Linux" || rd.SessionID != h.rec.Session().ID || rd.TotalFrames != 2 {
		t.Errorf("recording_data = %+v", rd)
	}

	if temps, _ := filepath.Glob(filepath.Join(dir, "temp_*")); len(temps) != 0 {
		t.Errorf("temp files left behind: %v", temps)
	}
	if h.rec.State() != Finalized {
		t.Errorf("state = %s, want finalized", h.rec.State())
	}
}
