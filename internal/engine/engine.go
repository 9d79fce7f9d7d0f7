// Package engine 把解码器写入的音频经过效果、格式转换和重采样后放入环形缓冲区，
// 并由独立的 goroutine 按设备的可写空间把缓冲区输出到设备。
//
// 所有公共方法和输出 goroutine 共用一把锁。输出 goroutine 每轮循环释放一次锁，
// 让解码器有机会写入。
package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/liuscraft/crossfade/internal/buffer"
	"github.com/liuscraft/crossfade/internal/config"
	"github.com/liuscraft/crossfade/internal/device"
	"github.com/liuscraft/crossfade/internal/effect"
	"github.com/liuscraft/crossfade/internal/fade"
	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
	"github.com/liuscraft/crossfade/internal/rate"
)

var (
	ErrDeviceOpen   = errors.New("engine: device did not open")
	ErrDeviceReopen = errors.New("engine: device did not reopen")
	ErrNotOpen      = errors.New("engine: not open")
)

// Host 宿主播放器提供的查询
type Host interface {
	// CurrentFilename 即将打开的曲目文件名或 URL
	CurrentFilename() string
	// InputPlaying 宿主是否仍在播放（包括曲目之间）
	InputPlaying() bool
}

// State 输出状态
type State int

const (
	StateClosed State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

const (
	defaultTick        = 10 * time.Millisecond
	defaultSyncTimeout = 2000 * time.Millisecond
	// keepOpenedSilenceMs 保持设备打开时每次补充的静音
	keepOpenedSilenceMs = 100
	// minDeviceWrite 设备缓冲已满时每轮仍写入的最大字节数
	minDeviceWrite = 2304
)

// Engine 交叉淡化输出引擎
type Engine struct {
	mu   sync.Mutex
	cfg  *config.GlobalConfig
	dev  device.Device
	host Host

	effect *effect.Stage
	conv   *format.Converter
	rate   *rate.Converter
	ring   *buffer.Ring

	inFormat  format.Format
	outFormat format.Format

	// opened 解码器已打开，playing 本曲目仍在播放（由 BufferPlaying 清除）
	opened       bool
	playing      bool
	paused       bool
	stopped      bool
	eop          bool
	inputPlaying bool
	isHTTP       bool
	outputOpened bool

	// streampos 当前曲目已写入的输入字节数
	streampos       int64
	outputFlushTime int
	outputOffset    int
	outputWritten   int64
	outputStreampos int64

	lastClose    time.Time
	lastWrite    time.Time
	lastFilename string
	fadeConfig   *fade.Config
	err          error

	workerDone  chan struct{}
	tick        time.Duration
	syncTimeout time.Duration
	now         func() time.Time
}

// New 创建引擎，设备在第一次 Open 时才打开
func New(cfg *config.GlobalConfig, dev device.Device, host Host) *Engine {
	e := &Engine{
		cfg:         cfg,
		dev:         dev,
		host:        host,
		effect:      effect.NewStage(),
		conv:        format.NewConverter(),
		rate:        rate.New(),
		tick:        defaultTick,
		syncTimeout: defaultSyncTimeout,
		now:         time.Now,
	}
	e.fadeConfig = cfg.FadeConfig(fade.ScenarioStart)
	logging.SetDevice(cfg.Output.Device)
	if cfg.Effect.Name != "" {
		fx, err := effect.Lookup(cfg.Effect.Name)
		if err != nil {
			logging.Warnf("Engine: %v", err)
		} else {
			e.effect.Set(fx, cfg.Effect.Enable)
		}
	}
	return e
}

// Effect 混音前的效果处理阶段
func (e *Engine) Effect() *effect.Stage {
	return e.effect
}

// Open 开始一首新曲目。根据上一曲目的结束方式选择过渡场景，
// 必要时打开设备并启动输出 goroutine。
func (e *Engine) Open(kind format.Kind, rateHz, channels int) error {
	file := ""
	if e.host != nil {
		file = e.host.CurrentFilename()
	}
	track := logging.NextTrack()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opened {
		logging.Warnf("Engine: open while already opened")
	}
	logging.Debugf("Engine: open #%d %q", track, file)

	if e.lastFilename != "" && e.fadeConfig.Scenario == fade.ScenarioXfade {
		if e.cfg.NoXfadeIfSameFile && e.lastFilename == file {
			logging.Debugf("Engine: same file, disabling crossfade")
			e.fadeConfig = e.cfg.FadeConfig(fade.ScenarioAlbum)
		} else if e.cfg.AlbumDetection && albumMatch(e.lastFilename, file) {
			e.selectAlbum()
		}
	}
	e.lastFilename = file
	e.isHTTP = e.cfg.HTTPWorkaround && strings.HasPrefix(strings.ToLower(file), "http://")

	now := e.now()
	e.lastWrite = now
	if e.outputOpened && !e.lastClose.IsZero() {
		logging.Debugf("Engine: %d ms since close", now.Sub(e.lastClose).Milliseconds())
	}

	in, err := format.Negotiate(kind, rateHz, channels)
	if err != nil {
		logging.Warnf("Engine: %v", err)
		return err
	}
	e.inFormat = in

	// 上一个会话正在关闭，等它结束后重新打开设备
	if e.stopped && e.outputOpened {
		e.waitWorker()
	}
	if !e.outputOpened {
		if err := e.openOutput(); err != nil {
			logging.Errorf("Engine: %v: %v", ErrDeviceOpen, err)
			return fmt.Errorf("%w: %v", ErrDeviceOpen, err)
		}
		e.fadeConfig = e.cfg.FadeConfig(fade.ScenarioStart)
	}

	e.streampos = 0
	e.playing = true
	e.opened = true
	e.paused = false

	gap := e.gapConfig()
	e.ring.ResetMixFadeGap(gap)
	switch e.fadeConfig.Scenario {
	case fade.ScenarioXfade, fade.ScenarioAlbum:
	default:
		e.ring.DisableGapKiller()
	}
	e.outputWritten = 0

	fc := e.fadeConfig
	plugin := e.cfg.Output.Plugin
	logging.SetScenario(fc.Scenario.String())
	logging.Infof("Engine: %s transition (%s), input %s", fc.Scenario, fc.Type, in)
	switch fc.Type {
	case fade.TypeFlush:
		e.dev.Flush(0)
		e.outputStreampos = 0
		e.ring.Reset(gap)
		e.ring.ApplyFadeConfig(fc, e.outFormat)
		if plugin.ForceReopen {
			e.ring.ArmReopenNow()
		}
	case fade.TypeReopen:
		if fc.Flush {
			e.ring.Reset(gap)
		}
		if e.ring.ReopenPending() {
			logging.Warnf("Engine: reopen already in progress")
		}
		e.ring.ArmReopen(false)
	case fade.TypeNone, fade.TypePause, fade.TypeSimpleXF, fade.TypeAdvancedXF,
		fade.TypeFadeIn, fade.TypeFadeOut:
		e.ring.ApplyFadeConfig(fc, e.outFormat)
		if plugin.ForceReopen && fc.Scenario != fade.ScenarioStart {
			if e.ring.ReopenPending() {
				logging.Warnf("Engine: reopen already in progress")
			}
			e.ring.ArmReopen(true)
		}
	}

	e.outputOffset = e.dev.WrittenTime() + e.outFormat.BytesToMs(e.ring.Used()) +
		e.outFormat.BytesToMs(e.ring.SilenceLen())
	return nil
}

// selectAlbum 连续曲目改用专辑场景。尾部静音检测开启时，
// 只有上一曲目结尾没有完整的静音（已经淡出过）才算专辑内过渡。
func (e *Engine) selectAlbum() {
	if e.cfg.GapTrailEnable() && e.ring != nil {
		if e.ring.GapKilled() >= e.ring.GapLen() {
			logging.Debugf("Engine: album match, but trailing gap was silent, keeping crossfade")
			return
		}
	}
	logging.Debugf("Engine: album match, using %s", fade.ScenarioAlbum)
	e.fadeConfig = e.cfg.FadeConfig(fade.ScenarioAlbum)
}

func (e *Engine) gapConfig() buffer.GapConfig {
	g := buffer.GapConfig{
		Level:    e.cfg.Gap.LeadLevel,
		Crossing: e.cfg.Gap.Crossing,
	}
	if e.cfg.Gap.LeadEnable {
		g.Length = e.outFormat.MsToBytes(e.cfg.Gap.LeadLenMs)
	}
	return g
}

// Write 写入一段解码器输出。调用方应先通过 BufferFree 确认可写空间，
// 启用的效果可能原地修改 p。
func (e *Engine) Write(p []byte) {
	if rem := len(p) & 3; rem != 0 {
		logging.Warnf("Engine: truncating %d bytes", rem)
		p = p[:len(p)&^3]
	}
	if len(p) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inFormat.Valid() {
		logging.Warnf("Engine: write: %v", ErrNotOpen)
		return
	}
	e.streampos += int64(len(p))

	f := e.inFormat
	data := e.effect.Flow(p, &f)
	data = e.conv.Convert(data, f)
	if !e.rate.Valid() || e.rate.InRate() != f.Rate {
		e.rate.Configure(f.Rate, e.cfg.Output.Rate, rate.Quality(e.cfg.Output.Quality))
	}
	data = e.rate.Process(data, e.softVolume())

	if !e.outputOpened {
		if err := e.openOutput(); err != nil {
			logging.Errorf("Engine: write: %v: %v", ErrDeviceOpen, err)
			return
		}
	}
	e.lastWrite = e.now()

	res := e.ring.Write(data)
	if res.GapFinished && e.outFormat.BPS > 0 {
		e.streampos -= int64(res.GapKilled) * int64(e.inFormat.BPS) / int64(e.outFormat.BPS)
	}
}

func (e *Engine) softVolume() rate.Volume {
	return rate.Volume{
		Software: e.cfg.Mixer.Software,
		Left:     e.cfg.Mixer.VolLeft,
		Right:    e.cfg.Mixer.VolRight,
	}
}

// Close 结束当前曲目。曲目仍在播放时视为手动切换；
// 否则视为自动换曲，先裁掉尾部静音再对齐到过零点。
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.opened {
		logging.Warnf("Engine: close: %v", ErrNotOpen)
		return
	}

	if e.playing {
		if e.paused {
			if e.ring != nil {
				e.ring.CancelPause()
			}
			e.paused = false
			if e.cfg.Output.KeepOpened {
				if e.ring != nil {
					e.ring.Clear()
				}
				e.dev.Flush(0)
				e.dev.Pause(false)
			} else {
				e.stopped = true
			}
		}
		logging.Debugf("Engine: close: stop")
		e.fadeConfig = e.cfg.FadeConfig(fade.ScenarioManual)
	} else {
		logging.Debugf("Engine: close: songchange")
		if e.outputOpened && e.cfg.GapTrailEnable() {
			n := e.outFormat.MsToBytes(e.cfg.GapTrailLenMs())
			killed := e.ring.KillTrailingGap(n, e.cfg.GapTrailLevel())
			logging.Debugf("Engine: trailing gap %d/%d ms", e.outFormat.BytesToMs(killed), e.outFormat.BytesToMs(n))
		}
		if e.outputOpened && e.cfg.Gap.Crossing {
			skipped := e.ring.SkipToPreviousCrossing()
			logging.Debugf("Engine: skipped %d bytes to previous zero crossing", skipped)
		}
		e.fadeConfig = e.cfg.FadeConfig(fade.ScenarioXfade)
	}

	e.opened = false
	e.lastClose = e.now()
	e.inputPlaying = false
}

// Flush 跳转到 ms 处
func (e *Engine) Flush(ms int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.outputOpened {
		logging.Warnf("Engine: flush: %v", ErrNotOpen)
		return
	}
	e.streampos = (int64(ms) * int64(e.inFormat.BPS) / 1000) &^ 3

	seek := e.cfg.FadeConfig(fade.ScenarioSeek)
	switch {
	case seek.Type == fade.TypeFlush:
		e.dev.Flush(ms)
		e.outputFlushTime = ms
		e.outputStreampos = int64(e.outFormat.MsToBytes(ms))
		e.ring.Reset(e.gapConfig())
	case e.paused:
		e.ring.Clear()
		fc := *e.cfg.FadeConfig(fade.ScenarioPause)
		fc.OutLenMs = 0
		fc.OffsetCustomMs = 0
		e.ring.ApplyFadeConfig(&fc, e.outFormat)
	default:
		e.ring.ApplyFadeConfig(seek, e.outFormat)
	}

	e.outputWritten = 0
	e.ring.RestartGap()
	e.outputOffset = e.dev.WrittenTime() - ms + e.outFormat.BytesToMs(e.ring.Used()) +
		e.outFormat.BytesToMs(e.ring.SilenceLen())
}

// Pause 暂停或恢复。高级暂停先淡出再插入静音，由输出 goroutine 在静音结束后真正暂停。
func (e *Engine) Pause(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !paused {
		if e.outputOpened {
			e.dev.Pause(false)
		}
		if e.ring != nil {
			e.ring.CancelPause()
		}
		e.paused = false
		logging.Debugf("Engine: resumed")
		return
	}

	fc := e.cfg.FadeConfig(fade.ScenarioPause)
	if fc.Type == fade.TypePauseAdv && e.ring != nil {
		out := e.outFormat.MsToBytes(fc.FadeOutLen())
		in := e.outFormat.MsToBytes(fc.FadeInLen())
		silence := max(e.outFormat.MsToBytes(fc.Offset()), 0)
		e.ring.PauseFade(out, in, silence)
		e.paused = false
		logging.Debugf("Engine: pausing after %d ms fadeout and %d ms silence",
			e.outFormat.BytesToMs(e.ring.Silence()), e.outFormat.BytesToMs(e.ring.SilenceLen()))
		return
	}
	if e.outputOpened {
		e.dev.Pause(true)
	}
	e.paused = true
	logging.Debugf("Engine: paused")
}

// BufferFree 解码器现在可以写入的字节数（按输入格式换算）
func (e *Engine) BufferFree() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.outputOpened {
		if out, err := format.Output(e.cfg.Output.Rate); err == nil {
			return out.MsToBytes(e.cfg.SyncSizeMs)
		}
		return 0
	}

	free := max(e.ring.Size()-e.ring.Used(), 0)
	free /= e.outFormat.Rate/(e.inFormat.Rate+1) + 1
	if e.inFormat.Kind.Is8Bit() {
		free /= 2
	}
	if e.inFormat.Channels == 1 {
		free /= 2
	}
	return free
}

// BufferPlaying 除暂停、HTTP 流和待输出的静音或重开外总是返回 false，
// 让宿主尽早打开下一首曲目。返回 false 后的 Close 按自动换曲处理。
func (e *Engine) BufferPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		e.playing = true
	} else if e.ring == nil {
		e.playing = false
	} else {
		e.playing = (e.isHTTP && e.ring.Used() > 0 && e.dev.BufferPlaying()) ||
			e.ring.ReopenPending() || e.ring.Silence() > 0 || e.ring.SilenceLen() > 0
	}
	return e.playing
}

// WrittenTime 当前曲目已写入的时长 (ms)
func (e *Engine) WrittenTime() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writtenTime()
}

func (e *Engine) writtenTime() int {
	if !e.outputOpened || e.inFormat.BPS <= 0 {
		return 0
	}
	return int(e.streampos * 1000 / int64(e.inFormat.BPS))
}

// OutputTime 当前曲目已播放的时长 (ms)
func (e *Engine) OutputTime() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.outputOpened {
		return 0
	}
	return max(e.dev.OutputTime()-e.outputOffset, 0)
}

// Volume 返回左右声道音量
func (e *Engine) Volume() (l, r int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.cfg.Mixer
	if m.Software {
		if m.Reverse {
			return m.VolRight, m.VolLeft
		}
		return m.VolLeft, m.VolRight
	}
	l, r = e.dev.Volume()
	if m.Reverse {
		return r, l
	}
	return l, r
}

// SetVolume 设置音量，未启用混音器时忽略
func (e *Engine) SetVolume(l, r int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := &e.cfg.Mixer
	if !m.Enable {
		return
	}
	if m.Reverse {
		l, r = r, l
	}
	if m.Software {
		m.VolLeft, m.VolRight = l, r
		return
	}
	e.dev.SetVolume(l, r)
}

// State 当前输出状态
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case !e.outputOpened:
		return StateClosed
	case e.paused:
		return StatePaused
	default:
		return StatePlaying
	}
}

// Err 最近一次设备错误，设备重新打开成功后清除
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Shutdown 停止输出 goroutine 并关闭设备，阻塞到清理完成
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.outputOpened {
		return
	}
	logging.Infof("Engine: shutting down")
	e.stopped = true
	e.waitWorker()
}

// waitWorker 释放锁等待输出 goroutine 退出，调用时必须持有锁
func (e *Engine) waitWorker() {
	done := e.workerDone
	if done == nil {
		return
	}
	e.mu.Unlock()
	<-done
	e.mu.Lock()
}
