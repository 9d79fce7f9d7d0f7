package engine

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/liuscraft/crossfade/internal/device"
	"github.com/liuscraft/crossfade/internal/fade"
	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
)

var errBoom = errors.New("boom")

func TestOpenStartsOutputWithFadeIn(t *testing.T) {
	e, dev, _ := newTestEngine(t, testConfig())
	mustOpen(t, e)

	if e.State() != StatePlaying || !dev.IsOpen() {
		t.Fatalf("state=%v device open=%v", e.State(), dev.IsOpen())
	}
	if e.scenario() != fade.ScenarioStart {
		t.Fatalf("first open should use %s, got %s", fade.ScenarioStart, e.scenario())
	}

	e.Write(frames(200, 8000))
	eventually(t, "drain", func() bool { return dev.Written() == 800 })

	data := dev.Data()
	if got := format.Sample(data, 0); got != 0 {
		t.Errorf("first sample = %d, want 0", got)
	}
	if got := format.Sample(data, 300); got != 8000 {
		t.Errorf("sample after fade-in = %d, want 8000", got)
	}
	if got := e.WrittenTime(); got != 200 {
		t.Errorf("WrittenTime() = %d, want 200", got)
	}
}

func TestOpenRejectsBadFormat(t *testing.T) {
	e, dev, _ := newTestEngine(t, testConfig())

	err := e.Open(format.KindS16LE, 1000, 3)
	var fe *format.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("Open() error = %v, want FormatError", err)
	}
	if dev.Calls().Open != 0 {
		t.Fatalf("device should not be opened")
	}
}

func TestOpenDeviceFailure(t *testing.T) {
	e, dev, _ := newTestEngine(t, testConfig())
	dev.SetOpenError(errBoom)

	err := e.Open(format.KindS16LE, 1000, 2)
	if !errors.Is(err, ErrDeviceOpen) {
		t.Fatalf("Open() error = %v, want ErrDeviceOpen", err)
	}
	if e.State() != StateClosed {
		t.Fatalf("state = %v, want Closed", e.State())
	}
	if !errors.Is(e.Err(), errBoom) {
		t.Fatalf("Err() = %v", e.Err())
	}
}

func TestWriteBeforeOpenIgnored(t *testing.T) {
	e, dev, _ := newTestEngine(t, testConfig())
	e.Write(frames(10, 100))
	if dev.Calls().Open != 0 || e.WrittenTime() != 0 {
		t.Fatalf("write before open should be dropped")
	}
}

func TestWriteTruncatesPartialFrame(t *testing.T) {
	e, dev, _ := newTestEngine(t, testConfig())
	mustOpen(t, e)
	e.Write(append(frames(100, 8000), 1, 2, 3))
	eventually(t, "drain", func() bool { return dev.Written() == 400 })
	if got := e.WrittenTime(); got != 100 {
		t.Fatalf("WrittenTime() = %d, want 100", got)
	}
}

func TestBufferPlayingReportsFalseWhilePlaying(t *testing.T) {
	cfg := testConfig()
	cfg.Fade[fade.ScenarioPause].Type = fade.TypePauseNone
	e, _, _ := newTestEngine(t, cfg)
	mustOpen(t, e)
	e.Write(frames(100, 8000))

	if e.BufferPlaying() {
		t.Fatalf("BufferPlaying() = true while data is queued")
	}
	e.Pause(true)
	if !e.BufferPlaying() {
		t.Fatalf("BufferPlaying() = false while paused")
	}
	e.Pause(false)
	if e.BufferPlaying() {
		t.Fatalf("BufferPlaying() = true after resume")
	}
}

func TestBufferPlayingHTTPWorkaround(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPWorkaround = true
	e, dev, host := newTestEngine(t, cfg)
	host.set("HTTP://radio.example/stream", true)
	dev.SetFree(0)
	dev.SetPlaying(true)

	mustOpen(t, e)
	e.Write(frames(100, 8000))
	if !e.BufferPlaying() {
		t.Fatalf("BufferPlaying() = false for a buffered http stream")
	}
}

func TestCloseSelectsTransition(t *testing.T) {
	tests := []struct {
		name     string
		first    string
		second   string
		finished bool
		sameFile bool
		want     fade.Scenario
	}{
		{"stopped by user", "/m/a.mp3", "/m/b.mp3", false, false, fade.ScenarioManual},
		{"songchange", "/m/a.mp3", "/m/b.mp3", true, false, fade.ScenarioXfade},
		{"album", "/m/album/01 - intro.mp3", "/m/album/02 - song.mp3", true, false, fade.ScenarioAlbum},
		{"album other dir", "/m/a/01.mp3", "/m/b/02.mp3", true, false, fade.ScenarioXfade},
		{"same file", "/m/a.mp3", "/m/a.mp3", true, true, fade.ScenarioAlbum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.NoXfadeIfSameFile = tt.sameFile
			e, _, host := newTestEngine(t, cfg)

			host.set(tt.first, true)
			mustOpen(t, e)
			e.Write(frames(100, 8000))
			if tt.finished {
				e.BufferPlaying()
			}
			e.Close()

			host.set(tt.second, true)
			mustOpen(t, e)
			if got := e.scenario(); got != tt.want {
				t.Fatalf("scenario = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAlbumKeepsCrossfadeAfterSilentTail(t *testing.T) {
	cfg := testConfig()
	cfg.Gap.LeadEnable = true
	e, dev, host := newTestEngine(t, cfg)
	dev.SetFree(0)

	host.set("/m/01.mp3", true)
	mustOpen(t, e)
	e.Write(frames(100, 8000))
	e.Write(frames(600, 0))
	if got := e.ringUsed(); got != 2800 {
		t.Fatalf("used = %d, want 2800", got)
	}
	e.BufferPlaying()
	e.Close()
	if got := e.ringUsed(); got != 800 {
		t.Fatalf("used after trailing gap = %d, want 800", got)
	}

	host.set("/m/02.mp3", true)
	mustOpen(t, e)
	if got := e.scenario(); got != fade.ScenarioXfade {
		t.Fatalf("scenario = %s, want %s", got, fade.ScenarioXfade)
	}
}

func TestStopFadesOutAndClosesDevice(t *testing.T) {
	e, dev, host := newTestEngine(t, testConfig())
	mustOpen(t, e)
	e.Write(frames(200, 8000))
	eventually(t, "drain", func() bool { return dev.Written() == 800 })

	host.set("", false)
	e.Close()

	eventually(t, "device close", func() bool { return !dev.IsOpen() })
	if e.State() != StateClosed {
		t.Fatalf("state = %v, want Closed", e.State())
	}
	// 停止场景在结尾补 500ms 静音
	if got := dev.Written(); got != 2800 {
		t.Fatalf("written = %d, want 2800", got)
	}
	if got := dev.Calls().Close; got != 1 {
		t.Fatalf("close calls = %d, want 1", got)
	}
}

func TestEndOfPlaylistPadsAndCloses(t *testing.T) {
	e, dev, host := newTestEngine(t, testConfig())
	mustOpen(t, e)
	e.Write(frames(200, 8000))
	eventually(t, "drain", func() bool { return dev.Written() == 800 })

	e.BufferPlaying()
	host.set("", false)
	e.Close()

	eventually(t, "device close", func() bool { return !dev.IsOpen() })
	if got := dev.Written(); got != 2800 {
		t.Fatalf("written = %d, want 2800", got)
	}
	for i, b := range dev.Data()[800:] {
		if b != 0 {
			t.Fatalf("byte %d of end padding = %d", 800+i, b)
		}
	}
}

func TestKeepOpenedFeedsSilence(t *testing.T) {
	cfg := testConfig()
	cfg.Output.KeepOpened = true
	e, dev, host := newTestEngine(t, cfg)
	mustOpen(t, e)
	e.Write(frames(100, 8000))
	e.BufferPlaying()
	host.set("", false)
	e.Close()

	eventually(t, "silence", func() bool { return dev.Written() > 4000 })
	if !dev.IsOpen() {
		t.Fatalf("device should stay open")
	}
}

func TestAdvancedPause(t *testing.T) {
	e, dev, _ := newTestEngine(t, testConfig())
	dev.SetFree(0)
	mustOpen(t, e)
	e.Write(frames(1000, 8000))

	e.Pause(true)
	if e.State() == StatePaused {
		t.Fatalf("pause should wait for the fadeout")
	}
	dev.SetFree(device.DefaultBufferFree)

	eventually(t, "device pause", dev.IsPaused)
	if e.State() != StatePaused {
		t.Fatalf("state = %v, want Paused", e.State())
	}
	data := dev.Data()
	if len(data) != 800 {
		t.Fatalf("written before pause = %d, want 800", len(data))
	}
	for i, b := range data[400:] {
		if b != 0 {
			t.Fatalf("byte %d of pause silence = %d", 400+i, b)
		}
	}

	e.Pause(false)
	eventually(t, "resume", func() bool { return dev.Written() == 4400 })
	if e.State() != StatePlaying {
		t.Fatalf("state = %v, want Playing", e.State())
	}
}

func TestSimplePause(t *testing.T) {
	cfg := testConfig()
	cfg.Fade[fade.ScenarioPause].Type = fade.TypePauseNone
	e, dev, _ := newTestEngine(t, cfg)
	mustOpen(t, e)

	e.Pause(true)
	if !dev.IsPaused() || e.State() != StatePaused {
		t.Fatalf("device paused=%v state=%v", dev.IsPaused(), e.State())
	}
	e.Pause(false)
	if dev.IsPaused() || e.State() != StatePlaying {
		t.Fatalf("device paused=%v state=%v", dev.IsPaused(), e.State())
	}
}

func TestPauseBeforeOpenLeavesDeviceAlone(t *testing.T) {
	cfg := testConfig()
	cfg.Fade[fade.ScenarioPause].Type = fade.TypePauseNone
	e, dev, _ := newTestEngine(t, cfg)

	e.Pause(true)
	e.Pause(false)
	if got := dev.Calls().Pause; got != 0 {
		t.Fatalf("device pause calls = %d, want 0", got)
	}
}

func TestCloseWhilePausedRestartsOutput(t *testing.T) {
	cfg := testConfig()
	cfg.Fade[fade.ScenarioPause].Type = fade.TypePauseNone
	e, dev, _ := newTestEngine(t, cfg)
	mustOpen(t, e)
	e.Pause(true)
	e.Close()

	mustOpen(t, e)
	if e.State() != StatePlaying {
		t.Fatalf("state = %v, want Playing", e.State())
	}
	if got := dev.Calls(); got.Open != 2 || got.Close != 1 {
		t.Fatalf("calls = %+v, want 2 opens and 1 close", got)
	}
}

func TestFlush(t *testing.T) {
	e, dev, _ := newTestEngine(t, testConfig())
	dev.SetFree(0)
	mustOpen(t, e)
	e.Write(frames(100, 8000))

	e.Flush(3000)
	if got := e.WrittenTime(); got != 3000 {
		t.Fatalf("WrittenTime() = %d, want 3000", got)
	}
	if dev.Calls().Flush != 0 {
		t.Fatalf("crossfading seek should not flush the device")
	}

	// 50ms 淡出保留在缓冲区，与新位置的数据重叠
	e.Write(frames(200, 8000))
	dev.SetFree(device.DefaultBufferFree)
	eventually(t, "drain", func() bool { return dev.Written() == 800 })
	if got, want := e.OutputTime(), e.WrittenTime(); got != want || got != 3200 {
		t.Fatalf("OutputTime() = %d, WrittenTime() = %d, want 3200", got, want)
	}
}

func TestFlushDevice(t *testing.T) {
	cfg := testConfig()
	cfg.Fade[fade.ScenarioSeek].Type = fade.TypeFlush
	e, dev, _ := newTestEngine(t, cfg)
	dev.SetFree(0)
	mustOpen(t, e)
	e.Write(frames(100, 8000))

	e.Flush(1500)
	if got := dev.Calls().Flush; got != 1 {
		t.Fatalf("device flushes = %d, want 1", got)
	}
	if e.ringUsed() != 0 {
		t.Fatalf("buffer should be empty after flush")
	}
	if got := e.WrittenTime(); got != 1500 {
		t.Fatalf("WrittenTime() = %d, want 1500", got)
	}

	e.Write(frames(200, 8000))
	dev.SetFree(device.DefaultBufferFree)
	eventually(t, "drain", func() bool { return dev.Written() == 800 })
	if got := e.OutputTime(); got != 1700 {
		t.Fatalf("OutputTime() = %d, want 1700", got)
	}
}

func TestFlushWhilePausedDropsBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.Fade[fade.ScenarioPause].Type = fade.TypePauseNone
	e, dev, _ := newTestEngine(t, cfg)
	dev.SetFree(0)
	mustOpen(t, e)
	e.Write(frames(100, 8000))
	e.Pause(true)

	e.Flush(0)
	if e.ringUsed() != 0 {
		t.Fatalf("buffer should be empty after paused flush")
	}
}

func TestBufferFreeScalesForInput(t *testing.T) {
	cfg := testConfig()
	cfg.Output.Rate = 44100
	e, _, _ := newTestEngine(t, cfg)

	if got := e.BufferFree(); got != 44100 {
		t.Fatalf("BufferFree() before open = %d, want sync size 44100", got)
	}

	if err := e.Open(format.KindS16LE, 22050, 1); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	e.mu.Lock()
	size := e.ring.Size()
	e.mu.Unlock()
	if got, want := e.BufferFree(), size/2/2; got != want {
		t.Fatalf("BufferFree() = %d, want %d", got, want)
	}
}

func TestVolume(t *testing.T) {
	tests := []struct {
		name     string
		software bool
		reverse  bool
		devL     int
		devR     int
	}{
		{"software", true, false, 100, 100},
		{"software reversed", true, true, 100, 100},
		{"device", false, false, 30, 70},
		{"device reversed", false, true, 70, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Mixer.Software = tt.software
			cfg.Mixer.Reverse = tt.reverse
			e, dev, _ := newTestEngine(t, cfg)

			e.SetVolume(30, 70)
			if l, r := e.Volume(); l != 30 || r != 70 {
				t.Fatalf("Volume() = %d,%d, want 30,70", l, r)
			}
			if l, r := dev.Volume(); l != tt.devL || r != tt.devR {
				t.Fatalf("device volume = %d,%d, want %d,%d", l, r, tt.devL, tt.devR)
			}
		})
	}
}

func TestSetVolumeDisabledMixer(t *testing.T) {
	cfg := testConfig()
	cfg.Mixer.Enable = false
	cfg.Mixer.Software = true
	e, _, _ := newTestEngine(t, cfg)
	e.SetVolume(10, 20)
	if l, r := e.Volume(); l != 75 || r != 75 {
		t.Fatalf("Volume() = %d,%d, want defaults", l, r)
	}
}

func TestReopenOnTransition(t *testing.T) {
	cfg := testConfig()
	cfg.Output.Plugin.ForceReopen = true
	cfg.Fade[fade.ScenarioXfade].Type = fade.TypeNone
	e, dev, host := newTestEngine(t, cfg)
	mustOpen(t, e)
	e.Write(frames(100, 8000))
	eventually(t, "drain", func() bool { return dev.Written() == 400 })
	e.BufferPlaying()
	e.Close()

	dev.SetFree(0)
	host.set("next.wav", true)
	mustOpen(t, e)
	e.Write(frames(200, 8000))
	dev.SetFree(device.DefaultBufferFree)

	eventually(t, "reopen", func() bool { return dev.Calls().Open == 2 && dev.Written() == 1200 })
	if e.State() != StatePlaying || e.Err() != nil {
		t.Fatalf("state=%v err=%v", e.State(), e.Err())
	}
	// 重开后设备时间从零开始，播放位置仍以新曲目为准
	if got := e.WrittenTime(); got != 200 {
		t.Fatalf("WrittenTime() = %d, want 200", got)
	}
	if got := e.OutputTime(); got != 200 {
		t.Fatalf("OutputTime() = %d, want 200 (device output %d)", got, dev.OutputTime())
	}
}

func TestCrossfadeOutputTimeFollowsNewTrack(t *testing.T) {
	cfg := testConfig()
	cfg.Fade[fade.ScenarioXfade].Type = fade.TypeSimpleXF
	cfg.Fade[fade.ScenarioXfade].SimpleLenMs = 200
	e, dev, host := newTestEngine(t, cfg)
	dev.SetFree(0)

	host.set("/m/a.mp3", true)
	mustOpen(t, e)
	e.Write(frames(1000, 8000))
	e.BufferPlaying()
	e.Close()

	host.set("/m/b.mp3", true)
	mustOpen(t, e)
	// 新曲目的前 200ms 与上一曲目的结尾重叠
	if got := e.ringUsed(); got != 3200 {
		t.Fatalf("used before mix = %d, want 3200", got)
	}
	if got := e.OutputTime(); got != 0 {
		t.Fatalf("OutputTime() before drain = %d, want 0", got)
	}
	e.Write(frames(500, 4000))
	dev.SetFree(device.DefaultBufferFree)

	eventually(t, "drain", func() bool { return dev.Written() == 5200 })
	if got := format.Sample(dev.Data(), 3200/2); got <= 4000 {
		t.Fatalf("mixed sample = %d, want both tracks summed", got)
	}
	if got, want := e.OutputTime(), e.WrittenTime(); got != want || got != 500 {
		t.Fatalf("OutputTime() = %d, WrittenTime() = %d, want 500", got, want)
	}
}

func TestReopenFailureStopsOutput(t *testing.T) {
	core, recorded := observer.New(zapcore.ErrorLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(nil) })

	cfg := testConfig()
	cfg.Output.Plugin.ForceReopen = true
	e, dev, host := newTestEngine(t, cfg)
	mustOpen(t, e)
	e.Write(frames(100, 8000))
	eventually(t, "drain", func() bool { return dev.Written() == 400 })
	e.BufferPlaying()
	e.Close()

	dev.SetOpenError(errBoom)
	host.set("next.wav", true)
	mustOpen(t, e)

	eventually(t, "worker exit", func() bool { return e.State() == StateClosed })
	if !errors.Is(e.Err(), ErrDeviceReopen) {
		t.Fatalf("Err() = %v, want ErrDeviceReopen", e.Err())
	}
	if recorded.FilterMessageSnippet("did not reopen").Len() != 1 {
		t.Fatalf("expected one reopen error log, got %d entries", recorded.Len())
	}
}

func TestShutdown(t *testing.T) {
	e, dev, _ := newTestEngine(t, testConfig())
	e.Shutdown()

	mustOpen(t, e)
	e.Shutdown()
	if dev.IsOpen() || e.State() != StateClosed {
		t.Fatalf("device open=%v state=%v", dev.IsOpen(), e.State())
	}
	e.Shutdown()

	mustOpen(t, e)
	if got := dev.Calls().Open; got != 2 {
		t.Fatalf("opens = %d, want 2", got)
	}
}

func TestLimitDeviceUse(t *testing.T) {
	cfg := testConfig()
	cfg.OpMaxUsedMs = 250
	cfg.SongchangeTimeoutMs = 500
	dev := device.NewNull(device.NullConfig{})
	e := New(cfg, dev, nil)
	out, _ := format.Output(1000)
	e.outFormat = out
	e.inFormat = out

	if err := dev.Open(out); err != nil {
		t.Fatal(err)
	}
	if got := e.limitDeviceUse(5000, 0); got != 5000 {
		t.Fatalf("right after flush: got %d, want 5000", got)
	}

	dev.Write(frames(500, 0))
	tests := []struct {
		name       string
		free       int
		sinceWrite int
		want       int
	}{
		{"songchange", 5000, 0, 1000},
		{"steady", 5000, 1000, 1000},
		{"small free", 500, 1000, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.limitDeviceUse(tt.free, tt.sinceWrite); got != tt.want {
				t.Fatalf("limitDeviceUse(%d, %d) = %d, want %d", tt.free, tt.sinceWrite, got, tt.want)
			}
		})
	}
}
