package finalize

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"go2tv.app/screenrec/audio"
	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/interaction"
)

var sessionStart = time.Date(2024, 5, 6, 14, 30, 15, 0, time.UTC)

type runCall struct {
	name       string
	args       []string
	stdinBytes int
}

// fakeRunner stands in for ffmpeg: encodes write "video", muxes write
// "muxed" to the last argument.
type fakeRunner struct {
	mu        sync.Mutex
	calls     []runCall
	encodeErr error
	muxErr    error
	onMux     func(args []string)
}

func (r *fakeRunner) Run(_ context.Context, name string, args []string, stdin io.Reader) error {
	n := 0
	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		n = len(data)
	}
	r.mu.Lock()
	r.calls = append(r.calls, runCall{name: name, args: args, stdinBytes: n})
	r.mu.Unlock()

	out := args[len(args)-1]
	if slices.Contains(args, "rawvideo") {
		if r.encodeErr != nil {
			return r.encodeErr
		}
		return os.WriteFile(out, []byte("video"), 0o644)
	}
	if r.onMux != nil {
		r.onMux(args)
	}
	if r.muxErr != nil {
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		return r.muxErr
	}
	return os.WriteFile(out, []byte("muxed"), 0o644)
}

func frames(offsets ...time.Duration) []capture.Frame {
	out := make([]capture.Frame, 0, len(offsets))
	for _, off := range offsets {
		out = append(out, capture.Frame{Image: capture.NewImage(4, 2), Elapsed: off})
	}
	return out
}

func testEvents() (callback, polled []interaction.Event) {
	callback = []interaction.Event{
		{Timestamp: sessionStart.Add(300 * time.Millisecond), Type: interaction.KeyPress, Key: "a", Seq: 3},
		{Timestamp: sessionStart.Add(100 * time.Millisecond), Type: interaction.MouseDown, Button: "left", Seq: 2},
	}
	polled = []interaction.Event{
		{Timestamp: sessionStart.Add(50 * time.Millisecond), Type: interaction.MouseMove, Position: &interaction.Position{X: 1, Y: 1}, Seq: 1},
	}
	return callback, polled
}

func newTestFinalizer(t *testing.T, r *fakeRunner) (*Finalizer, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "recordings")
	return New(Options{OutputDir: dir, Runner: r, Platform: "linux"}), dir
}

func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "temp_*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) > 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestAchievedFPS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		frames []capture.Frame
		want   float64
	}{
		{"single frame", frames(0), 30},
		{"zero span", frames(time.Second, time.Second), 30},
		{"three over one second", frames(0, 500*time.Millisecond, time.Second), 2},
		{"offset start", frames(time.Second, 1100*time.Millisecond, 1200*time.Millisecond, 1300*time.Millisecond), 10},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := AchievedFPS(tc.frames, 30)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("AchievedFPS = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPlatformName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		goos, want string
	}{
		{"linux", "Linux"},
		{"windows", "Windows"},
		{"darwin", "Darwin"},
		{"freebsd", "FreeBSD"},
		{"solaris", "SunOS"},
		{"plan9", "Plan9"},
		{"", ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.goos, func(t *testing.T) {
			t.Parallel()
			if got := PlatformName(tc.goos); got != tc.want {
				t.Errorf("PlatformName(%q) = %q, want %q", tc.goos, got, tc.want)
			}
		})
	}
}

func TestNew_DefaultPlatform(t *testing.T) {
	t.Parallel()

	f := New(Options{OutputDir: t.TempDir()})
	if want := PlatformName(runtime.GOOS); f.opts.Platform != want {
		t.Errorf("default platform = %q, want %q", f.opts.Platform, want)
	}
}

func TestFinalize_NoFrames(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	f, dir := newTestFinalizer(t, r)
	art, err := f.Finalize(context.Background(), Input{StartedAt: sessionStart, AudioEnabled: true})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if art != (Artifacts{}) {
		t.Errorf("artifacts = %+v, want zero", art)
	}
	if len(r.calls) != 0 {
		t.Errorf("runner called %d times", len(r.calls))
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("output dir should not be created, stat err = %v", err)
	}
}

func TestFinalize_VideoOnly(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	f, dir := newTestFinalizer(t, r)
	callback, polled := testEvents()
	art, err := f.Finalize(context.Background(), Input{
		SessionID: "s-1",
		StartedAt: sessionStart,
		Frames:    frames(0, 500*time.Millisecond, time.Second),
		TargetFPS: 30,
		Callback:  callback,
		Polled:    polled,
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if want := filepath.Join(dir, "recording_20240506_143015.mp4"); art.VideoPath != want {
		t.Errorf("VideoPath = %s, want %s", art.VideoPath, want)
	}
	if want := filepath.Join(dir, "interactions_20240506_143015.json"); art.InteractionsPath != want {
		t.Errorf("InteractionsPath = %s, want %s", art.InteractionsPath, want)
	}
	if got := readString(t, art.VideoPath); got != "video" {
		t.Errorf("video content = %q", got)
	}

	if len(r.calls) != 1 {
		t.Fatalf("runner called %d times, want 1", len(r.calls))
	}
	enc := r.calls[0]
	if enc.name != "ffmpeg" {
		t.Errorf("encoder tool = %s", enc.name)
	}
	for _, pair := range [][2]string{{"-pix_fmt", "bgr24"}, {"-s", "4x2"}, {"-r", "2.000"}} {
		i := slices.Index(enc.args, pair[0])
		if i < 0 || i+1 >= len(enc.args) || enc.args[i+1] != pair[1] {
			t.Errorf("encode args %v missing %s %s", enc.args, pair[0], pair[1])
		}
	}
	if want := 3 * 4 * 2 * 3; enc.stdinBytes != want {
		t.Errorf("piped %d bytes, want %d", enc.stdinBytes, want)
	}

	l, err := interaction.ReadLog(art.InteractionsPath)
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	rd := l.RecordingData
	if rd.TotalEvents != 3 || rd.TotalFrames != 3 || rd.SessionID != "s-1" || rd.Platform != "linux" {
		t.Errorf("envelope = %+v", rd)
	}
	wantTypes := []interaction.Kind{interaction.MouseMove, interaction.MouseDown, interaction.KeyPress}
	for i, e := range rd.Interactions {
		if e.Type != wantTypes[i] {
			t.Errorf("interaction %d = %s, want %s", i, e.Type, wantTypes[i])
		}
	}
	assertNoTemps(t, dir)
}

func TestFinalize_MuxesAudio(t *testing.T) {
	t.Parallel()

	var (
		wavChannels, wavRate, wavSamples int
		wavErr                           error
	)
	r := &fakeRunner{onMux: func(args []string) {
		f, err := os.Open(args[4])
		if err != nil {
			wavErr = err
			return
		}
		defer f.Close()
		buf, err := wav.NewDecoder(f).FullPCMBuffer()
		if err != nil {
			wavErr = err
			return
		}
		wavChannels, wavRate, wavSamples = buf.Format.NumChannels, buf.Format.SampleRate, len(buf.Data)
	}}
	f, dir := newTestFinalizer(t, r)

	blocks := []audio.Block{
		{Samples: []int16{1, -1, 2, -2}, Channels: 2, SampleRate: 44100},
		{Samples: []int16{3, -3, 4, -4, 5, -5}, Channels: 2, SampleRate: 44100},
	}
	art, err := f.Finalize(context.Background(), Input{
		StartedAt:    sessionStart,
		Frames:       frames(0, 100*time.Millisecond),
		TargetFPS:    10,
		AudioEnabled: true,
		Audio:        blocks,
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got := readString(t, art.VideoPath); got != "muxed" {
		t.Errorf("video content = %q, want muxed output", got)
	}

	if len(r.calls) != 2 {
		t.Fatalf("runner called %d times, want 2", len(r.calls))
	}
	paths := pathsFor(dir, sessionStart)
	if got, want := r.calls[1].args, MuxArgs(paths.tempVideo, paths.tempAudio, paths.video); !slices.Equal(got, want) {
		t.Errorf("mux args = %v\nwant %v", got, want)
	}
	if wavErr != nil {
		t.Fatalf("decode temp wav: %v", wavErr)
	}
	if wavChannels != 2 || wavRate != 44100 || wavSamples != 10 {
		t.Errorf("wav = %d ch, %d Hz, %d samples; want 2, 44100, 10", wavChannels, wavRate, wavSamples)
	}
	assertNoTemps(t, dir)
}

func TestFinalize_MuxFailureKeepsVideo(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{muxErr: errors.New("exit status 1")}
	f, dir := newTestFinalizer(t, r)
	art, err := f.Finalize(context.Background(), Input{
		StartedAt:    sessionStart,
		Frames:       frames(0, 100*time.Millisecond),
		AudioEnabled: true,
		Audio:        []audio.Block{{Samples: []int16{1, 2}, Channels: 2, SampleRate: 48000}},
	})
	if err != nil {
		t.Fatalf("mux failure must not surface: %v", err)
	}
	if got := readString(t, art.VideoPath); got != "video" {
		t.Errorf("video content = %q, want the encoded video", got)
	}
	if art.InteractionsPath == "" {
		t.Error("interaction log missing")
	}
	assertNoTemps(t, dir)
}

func TestFinalize_AudioEnabledWithoutBlocks(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	f, _ := newTestFinalizer(t, r)
	art, err := f.Finalize(context.Background(), Input{
		StartedAt:    sessionStart,
		Frames:       frames(0),
		AudioEnabled: true,
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(r.calls) != 1 {
		t.Errorf("runner called %d times, want encode only", len(r.calls))
	}
	if art.VideoPath == "" {
		t.Error("video path missing")
	}
}

func TestFinalize_EncodeFailureStillWritesLog(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{encodeErr: errors.New("unknown encoder")}
	f, dir := newTestFinalizer(t, r)
	callback, polled := testEvents()
	art, err := f.Finalize(context.Background(), Input{
		StartedAt: sessionStart,
		Frames:    frames(0, time.Second),
		Callback:  callback,
		Polled:    polled,
	})
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("err = %v, want ErrEncode", err)
	}
	if art.VideoPath != "" {
		t.Errorf("VideoPath = %s, want empty", art.VideoPath)
	}
	if _, statErr := os.Stat(art.InteractionsPath); statErr != nil {
		t.Errorf("interaction log: %v", statErr)
	}
	assertNoTemps(t, dir)
}

func TestCleanupStaleTemps(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	old := time.Now().Add(-13 * time.Hour)
	write := func(name string, mtime time.Time) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatal(err)
		}
		return p
	}
	stale := write("temp_20240101_000000.mp4", old)
	fresh := write("temp_20240506_143015.wav", time.Now())
	kept := write("recording_20240101_000000.mp4", old)

	if n := CleanupStaleTemps(dir, 12*time.Hour); n != 1 {
		t.Errorf("removed %d files, want 1", n)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale temp file survived")
	}
	for _, p := range []string{fresh, kept} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s removed: %v", filepath.Base(p), err)
		}
	}
}
