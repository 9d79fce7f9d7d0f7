// Package speaker 通过 PortAudio 阻塞写接口播放音频。
package speaker

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/liuscraft/crossfade/internal/device"
	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
)

// Config 扬声器配置
type Config struct {
	// FramesPerBuffer 每次写入 PortAudio 的帧数
	FramesPerBuffer int
	// BufferMs 允许排队等待播放的时长
	BufferMs int
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		FramesPerBuffer: 1024,
		BufferMs:        500,
	}
}

// stream PortAudio 输出流中用到的部分
type stream interface {
	Start() error
	Stop() error
	Abort() error
	Close() error
	Write() error
}

// openFunc 打开输出流，out 为与流绑定的交错采样缓冲
type openFunc func(f format.Format, frames int, out *[]int16) (stream, error)

// Speaker 默认输出设备
type Speaker struct {
	mu    sync.Mutex
	cfg   Config
	open  openFunc
	close func()

	stream  stream
	out     []int16
	pending []int16
	clock   *device.Clock
	format  format.Format
	started bool
	paused  bool

	volL, volR int
}

var _ device.Device = (*Speaker)(nil)

// New 创建扬声器设备，设备在 Open 时才初始化 PortAudio
func New(cfg Config) *Speaker {
	def := DefaultConfig()
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = def.FramesPerBuffer
	}
	if cfg.BufferMs <= 0 {
		cfg.BufferMs = def.BufferMs
	}
	return &Speaker{
		cfg:   cfg,
		open:  openPortAudio,
		close: func() { portaudio.Terminate() },
		clock: device.NewClock(true),
		volL:  100,
		volR:  100,
	}
}

func openPortAudio(f format.Format, frames int, out *[]int16) (stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	s, err := portaudio.OpenDefaultStream(0, f.Channels, float64(f.Rate), frames, out)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	return s, nil
}

func (s *Speaker) Open(f format.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !f.Valid() || f.Kind.Is8Bit() {
		return device.ErrUnsupportedFormat
	}
	if s.stream != nil {
		s.closeLocked()
	}

	s.out = make([]int16, s.cfg.FramesPerBuffer*f.Channels)
	st, err := s.open(f, s.cfg.FramesPerBuffer, &s.out)
	if err != nil {
		return fmt.Errorf("open portaudio stream: %w", err)
	}
	if err := st.Start(); err != nil {
		st.Close()
		s.close()
		return fmt.Errorf("start portaudio stream: %w", err)
	}
	s.stream = st
	s.format = f
	s.pending = s.pending[:0]
	s.started = true
	s.paused = false
	s.clock.Start(f.BPS)
	logging.Infof("Speaker: opened %s, %d frames per buffer", f, s.cfg.FramesPerBuffer)
	return nil
}

func (s *Speaker) Write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return
	}
	n := len(p) / 2
	lf := float32(s.volL) / 100
	rf := float32(s.volR) / 100
	for i := range n {
		v := format.Sample(p, i)
		if s.format.Channels == 2 {
			if i&1 == 0 {
				v = int16(float32(v) * lf)
			} else {
				v = int16(float32(v) * rf)
			}
		} else {
			v = int16(float32(v) * lf)
		}
		s.pending = append(s.pending, v)
	}
	s.clock.Advance(n * 2)
	s.writePending(false)
}

// writePending 按整块写入排队的采样，pad 为 true 时用静音补齐最后一块
func (s *Speaker) writePending(pad bool) {
	if !s.started {
		return
	}
	size := len(s.out)
	for len(s.pending) >= size || (pad && len(s.pending) > 0) {
		n := copy(s.out, s.pending)
		clear(s.out[n:])
		if err := s.stream.Write(); err != nil {
			logging.Warnf("Speaker: write failed: %v", err)
		}
		s.pending = s.pending[n:]
	}
	if len(s.pending) == 0 {
		s.pending = s.pending[:0:0]
	}
}

func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Speaker) closeLocked() {
	if s.stream == nil {
		return
	}
	if !s.paused {
		s.writePending(true)
	}
	if s.started {
		if err := s.stream.Stop(); err != nil {
			logging.Errorf("Speaker: failed to stop stream: %v", err)
		}
	}
	if err := s.stream.Close(); err != nil {
		logging.Errorf("Speaker: failed to close stream: %v", err)
	}
	s.close()
	s.stream = nil
	s.started = false
	s.pending = nil
	logging.Infof("Speaker: closed")
}

func (s *Speaker) Flush(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]
	s.clock.Flush(ms)
	if s.stream == nil || !s.started {
		return
	}
	if err := s.stream.Abort(); err != nil {
		logging.Warnf("Speaker: abort failed: %v", err)
	}
	if err := s.stream.Start(); err != nil {
		logging.Errorf("Speaker: restart after flush failed: %v", err)
		s.started = false
	}
}

func (s *Speaker) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == paused {
		return
	}
	s.paused = paused
	s.clock.Pause(paused)
	if s.stream == nil {
		return
	}
	if paused {
		if err := s.stream.Stop(); err != nil {
			logging.Warnf("Speaker: failed to stop stream: %v", err)
		}
		s.started = false
		return
	}
	if err := s.stream.Start(); err != nil {
		logging.Errorf("Speaker: failed to start stream: %v", err)
		return
	}
	s.started = true
	s.writePending(false)
}

func (s *Speaker) BufferFree() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.stream == nil {
		return 0
	}
	limit := s.format.MsToBytes(s.cfg.BufferMs)
	return max(limit-s.clock.Pending(), 0)
}

func (s *Speaker) BufferPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Playing()
}

func (s *Speaker) OutputTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.OutputTime()
}

func (s *Speaker) WrittenTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.WrittenTime()
}

func (s *Speaker) Volume() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volL, s.volR
}

func (s *Speaker) SetVolume(l, r int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volL = min(max(l, 0), 100)
	s.volR = min(max(r, 0), 100)
}
