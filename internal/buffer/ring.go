// Package buffer 实现交叉淡化用的环形缓冲区。
//
// 缓冲区由混音区、同步区和预载区三部分组成，内部数据固定为 16 位小端立体声。
// 除数据本身外，缓冲区还维护若干相互独立的倒计数：首部静音检测、过零点跳过、
// 淡入、重叠混音、延迟静音、设备重开和暂停。这些倒计数可以同时生效，
// 每次 Drain 后统一推进。
//
// Ring 不是并发安全的，调用方负责加锁。
package buffer

import (
	"errors"

	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
)

// FrameSize 一帧立体声 16 位采样的字节数
const FrameSize = 4

// ErrZeroSize 三个区域的总大小为 0
var ErrZeroSize = errors.New("buffer: zero size")

// Sizes 各区域大小（字节）
type Sizes struct {
	Mix     int
	Sync    int
	Preload int
}

// GapConfig 首部静音检测参数
type GapConfig struct {
	// Length 最多删除的字节数，0 表示关闭
	Length int
	// Level 静音判定阈值
	Level int
	// Crossing 静音检测结束后是否跳到下一个过零点
	Crossing bool
}

type gapPhase int

const (
	// gapIdle 等待下一次写入决定是否跳过零点
	gapIdle gapPhase = iota
	gapKilling
	gapSkipPositive
	gapSkipNegative
	gapDone
)

type gapState struct {
	phase     gapPhase
	remaining int
	length    int
	level     int
	crossing  bool
	killed    int
	skipped   int
}

// countdown 可选的倒计数，active 为 false 时 n 无意义
type countdown struct {
	active bool
	n      int
}

func (c *countdown) arm(n int) {
	c.active = true
	c.n = n
}

func (c *countdown) cancel() {
	c.active = false
	c.n = 0
}

// Ring 环形缓冲区
type Ring struct {
	data []byte
	size int

	mixSize     int
	syncSize    int
	preloadSize int

	rd      int
	used    int
	preload int

	mix       int
	fade      int
	fadeLen   int
	fadeScale float32

	gap gapState

	// silence 在开始插入静音前还需输出的数据字节数，
	// silenceLen 需要插入的静音字节数
	silence    int
	silenceLen int

	reopen     countdown
	reopenSync bool
	pause      countdown

	zeros []byte
}

// New 按区域大小分配缓冲区，各区域向下对齐到帧
func New(s Sizes) (*Ring, error) {
	r := &Ring{
		mixSize:     s.Mix &^ 3,
		syncSize:    s.Sync &^ 3,
		preloadSize: s.Preload &^ 3,
	}
	r.size = r.mixSize + r.syncSize + r.preloadSize
	if r.size <= 0 {
		return nil, ErrZeroSize
	}
	r.data = make([]byte, r.size)
	logging.Debugf("RingBuffer: allocated %d bytes (mix=%d sync=%d preload=%d)",
		r.size, r.mixSize, r.syncSize, r.preloadSize)
	return r, nil
}

// ResetMixFadeGap 清除混音和淡入状态，按配置重新开始首部静音检测
func (r *Ring) ResetMixFadeGap(g GapConfig) {
	r.mix = 0
	r.fade = 0
	r.fadeLen = 0
	r.fadeScale = 0
	length := 0
	if g.Length > 0 {
		length = g.Length &^ 3
	}
	r.gap = gapState{
		remaining: length,
		length:    length,
		level:     g.Level,
		crossing:  g.Crossing,
	}
	if length > 0 {
		r.gap.phase = gapKilling
	}
}

// Reset 清空数据并把所有倒计数恢复为未激活
func (r *Ring) Reset(g GapConfig) {
	r.ResetMixFadeGap(g)
	r.rd = 0
	r.used = 0
	r.preload = r.preloadSize
	r.silence = 0
	r.silenceLen = 0
	r.reopen.cancel()
	r.reopenSync = false
	r.pause.cancel()
}

func (r *Ring) Size() int        { return r.size }
func (r *Ring) Used() int        { return r.used }
func (r *Ring) Free() int        { return r.size - r.used }
func (r *Ring) MixSize() int     { return r.mixSize }
func (r *Ring) SyncSize() int    { return r.syncSize }
func (r *Ring) PreloadSize() int { return r.preloadSize }
func (r *Ring) Silence() int     { return r.silence }
func (r *Ring) SilenceLen() int  { return r.silenceLen }
func (r *Ring) GapLen() int      { return r.gap.length }
func (r *Ring) GapKilled() int   { return r.gap.killed }

// ReopenPending 是否有尚未触发的设备重开
func (r *Ring) ReopenPending() bool { return r.reopen.active }

// PausePending 是否有尚未触发的暂停
func (r *Ring) PausePending() bool { return r.pause.active }

// GapInProgress 首部静音检测进行中时返回已删除的字节数
func (r *Ring) GapInProgress() int {
	if r.gap.phase == gapKilling && r.gap.remaining > 0 {
		return r.gap.length - r.gap.remaining
	}
	return 0
}

// DisableGapKiller 本次过渡不做首部静音检测和过零点跳过
func (r *Ring) DisableGapKiller() {
	r.gap.phase = gapDone
	r.gap.remaining = 0
}

// RestartGap 停止静音检测，下一次写入时重新决定是否跳过零点
func (r *Ring) RestartGap() {
	r.gap.phase = gapIdle
	r.gap.remaining = 0
}

// Clear 丢弃全部未输出的数据
func (r *Ring) Clear() {
	r.used = 0
}

// InsertSilence 立即开始插入 n 字节静音
func (r *Ring) InsertSilence(n int) {
	r.silence = 0
	r.silenceLen = n &^ 3
}

// ArmReopen 在当前数据输出完后重开设备，sync 为 true 时先等设备播完
func (r *Ring) ArmReopen(sync bool) {
	r.reopen.arm(r.used)
	r.reopenSync = sync
}

// ArmReopenNow 在下一轮输出时立即重开设备
func (r *Ring) ArmReopenNow() {
	r.reopen.arm(0)
	r.reopenSync = false
}

// CompleteReopen 设备重开完成，清除重开倒计数
func (r *Ring) CompleteReopen() {
	r.reopen.cancel()
	r.reopenSync = false
}

// CancelPause 取消尚未触发的暂停
func (r *Ring) CancelPause() {
	r.pause.cancel()
}

// UndoTrailingGap 恢复关闭时删除的尾部静音
func (r *Ring) UndoTrailingGap() int {
	n := r.gap.killed
	if n <= 0 {
		return 0
	}
	if r.used+n > r.size {
		n = r.size - r.used
	}
	r.used += n
	return n
}

func (r *Ring) sample(idx int) int16 {
	return format.Sample(r.data[idx:], 0)
}

func (r *Ring) putSample(idx int, v int16) {
	format.PutSample(r.data[idx:], 0, v)
}

// scaleFrame 按系数缩放 idx 处的一帧
func (r *Ring) scaleFrame(idx int, factor float32) {
	r.putSample(idx, int16(float32(r.sample(idx))*factor))
	r.putSample(idx+2, int16(float32(r.sample(idx+2))*factor))
}

func abs16(v int16) int {
	if v < 0 {
		return -int(v)
	}
	return int(v)
}

func saturate(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
