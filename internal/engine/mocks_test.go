package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/liuscraft/crossfade/internal/config"
	"github.com/liuscraft/crossfade/internal/device"
	"github.com/liuscraft/crossfade/internal/fade"
	"github.com/liuscraft/crossfade/internal/format"
)

type fakeHost struct {
	mu      sync.Mutex
	file    string
	playing bool
}

func (h *fakeHost) CurrentFilename() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file
}

func (h *fakeHost) InputPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *fakeHost) set(file string, playing bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.file = file
	h.playing = playing
}

// testConfig 1000Hz 输出，关闭静音检测，避免测试数据被裁剪
func testConfig() *config.GlobalConfig {
	cfg := config.DefaultConfig()
	cfg.Output.Device = config.DeviceNull
	cfg.Output.Rate = 1000
	cfg.Gap.LeadEnable = false
	cfg.Gap.Crossing = false
	cfg.InputTimeoutMs = 20
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.GlobalConfig) (*Engine, *device.Null, *fakeHost) {
	t.Helper()
	dev := device.NewNull(device.NullConfig{Record: true})
	host := &fakeHost{file: "track.wav", playing: true}
	e := New(cfg, dev, host)
	e.tick = time.Millisecond
	e.syncTimeout = 50 * time.Millisecond
	t.Cleanup(e.Shutdown)
	return e, dev, host
}

func mustOpen(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Open(format.KindS16LE, 1000, 2); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
}

// frames n 帧左右声道相同的立体声数据
func frames(n int, v int16) []byte {
	p := make([]byte, n*4)
	for i := 0; i < n*2; i++ {
		format.PutSample(p, i, v)
	}
	return p
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (e *Engine) scenario() fade.Scenario {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fadeConfig.Scenario
}

func (e *Engine) ringUsed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ring == nil {
		return 0
	}
	return e.ring.Used()
}
