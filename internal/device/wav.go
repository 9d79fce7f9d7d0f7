package device

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
)

// WAV 把输出写入 WAV 文件的设备。
// 路径中包含 %d 时每次打开生成一个新文件，否则覆盖同一个文件。
type WAV struct {
	mu      sync.Mutex
	pattern string
	seq     int
	path    string

	file  *os.File
	enc   *wav.Encoder
	buf   *audio.IntBuffer
	clock *Clock

	paused     bool
	volL, volR int
}

// NewWAV 创建 WAV 文件设备
func NewWAV(pattern string) *WAV {
	return &WAV{
		pattern: pattern,
		clock:   NewClock(false),
		volL:    100,
		volR:    100,
	}
}

func (w *WAV) Open(f format.Format) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := checkFormat(f); err != nil {
		return err
	}
	if w.enc != nil {
		w.closeLocked()
	}

	w.seq++
	path := w.pattern
	if strings.Contains(path, "%d") {
		path = fmt.Sprintf(path, w.seq)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	w.file = file
	w.path = path
	w.enc = wav.NewEncoder(file, f.Rate, 16, f.Channels, 1)
	w.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.Rate},
		SourceBitDepth: 16,
	}
	w.paused = false
	w.clock.Start(f.BPS)
	logging.Infof("WAVDevice: writing %s to %s", f, path)
	return nil
}

func (w *WAV) Write(p []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return
	}
	n := len(p) / 2
	if cap(w.buf.Data) < n {
		w.buf.Data = make([]int, n)
	}
	w.buf.Data = w.buf.Data[:n]
	for i := range n {
		w.buf.Data[i] = int(format.Sample(p, i))
	}
	if err := w.enc.Write(w.buf); err != nil {
		logging.Errorf("WAVDevice: write failed: %v", err)
		return
	}
	w.clock.Advance(n * 2)
}

func (w *WAV) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
}

func (w *WAV) closeLocked() {
	if w.enc == nil {
		return
	}
	if err := w.enc.Close(); err != nil {
		logging.Errorf("WAVDevice: failed to finalize %s: %v", w.path, err)
	}
	if err := w.file.Close(); err != nil {
		logging.Errorf("WAVDevice: failed to close %s: %v", w.path, err)
	}
	logging.Infof("WAVDevice: closed %s (%d ms)", w.path, w.clock.WrittenTime())
	w.enc = nil
	w.file = nil
}

func (w *WAV) Flush(ms int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clock.Flush(ms)
}

func (w *WAV) Pause(paused bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = paused
}

func (w *WAV) BufferFree() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paused {
		return 0
	}
	return DefaultBufferFree
}

func (w *WAV) BufferPlaying() bool { return false }

func (w *WAV) OutputTime() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clock.OutputTime()
}

func (w *WAV) WrittenTime() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clock.WrittenTime()
}

func (w *WAV) Volume() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.volL, w.volR
}

func (w *WAV) SetVolume(l, r int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.volL, w.volR = l, r
}

// Path 最近一次打开的文件路径
func (w *WAV) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}
