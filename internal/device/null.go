package device

import (
	"sync"

	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
)

// NullConfig 空设备配置
type NullConfig struct {
	// RealTime 按墙钟时间消耗数据，否则写入即播放完成
	RealTime bool
	// Free 设备缓冲大小，0 使用 DefaultBufferFree
	Free int
	// Record 保存写入的数据，供测试检查
	Record bool
}

// NullCalls 各方法被调用的次数
type NullCalls struct {
	Open  int
	Close int
	Write int
	Flush int
	Pause int
}

// Null 丢弃所有数据的设备
type Null struct {
	mu     sync.Mutex
	cfg    NullConfig
	clock  *Clock
	format format.Format

	opened  bool
	paused  bool
	playing bool
	openErr error
	data    []byte
	written int

	volL, volR int
	calls      NullCalls
}

// NewNull 创建空设备
func NewNull(cfg NullConfig) *Null {
	if cfg.Free <= 0 {
		cfg.Free = DefaultBufferFree
	}
	return &Null{
		cfg:   cfg,
		clock: NewClock(cfg.RealTime),
		volL:  100,
		volR:  100,
	}
}

func (n *Null) Open(f format.Format) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls.Open++
	if n.openErr != nil {
		return n.openErr
	}
	if err := checkFormat(f); err != nil {
		return err
	}
	n.format = f
	n.opened = true
	n.paused = false
	n.clock.Start(f.BPS)
	logging.Debugf("NullDevice: opened %s", f)
	return nil
}

func (n *Null) Write(p []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls.Write++
	if !n.opened {
		logging.Warnf("NullDevice: write of %d bytes while closed", len(p))
		return
	}
	if n.cfg.Record {
		n.data = append(n.data, p...)
	}
	n.written += len(p)
	n.clock.Advance(len(p))
}

func (n *Null) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls.Close++
	n.opened = false
}

func (n *Null) Flush(ms int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls.Flush++
	n.clock.Flush(ms)
}

func (n *Null) Pause(paused bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls.Pause++
	n.paused = paused
	n.clock.Pause(paused)
}

func (n *Null) BufferFree() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.paused {
		return 0
	}
	return max(n.cfg.Free-n.clock.Pending(), 0)
}

func (n *Null) BufferPlaying() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.playing || n.clock.Playing()
}

func (n *Null) OutputTime() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clock.OutputTime()
}

func (n *Null) WrittenTime() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clock.WrittenTime()
}

func (n *Null) Volume() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.volL, n.volR
}

func (n *Null) SetVolume(l, r int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.volL, n.volR = l, r
}

// SetFree 修改报告的设备缓冲大小
func (n *Null) SetFree(free int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg.Free = free
}

// SetPlaying 强制 BufferPlaying 返回 true
func (n *Null) SetPlaying(playing bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.playing = playing
}

// SetOpenError 之后的 Open 调用返回 err
func (n *Null) SetOpenError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.openErr = err
}

// Data 返回记录的数据副本
func (n *Null) Data() []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]byte(nil), n.data...)
}

// Written 写入的总字节数
func (n *Null) Written() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.written
}

func (n *Null) Calls() NullCalls {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *Null) IsOpen() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.opened
}

func (n *Null) IsPaused() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.paused
}

func (n *Null) Format() format.Format {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.format
}
