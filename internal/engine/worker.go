package engine

import (
	"time"

	"github.com/liuscraft/crossfade/internal/buffer"
	"github.com/liuscraft/crossfade/internal/fade"
	"github.com/liuscraft/crossfade/internal/logging"
)

func (e *Engine) sleep() {
	time.Sleep(e.tick)
}

// run 输出 goroutine 主循环。退出时关闭设备并关闭 done。
func (e *Engine) run(done chan struct{}) {
	defer close(done)
	logging.Debugf("Engine: output worker started")

	e.mu.Lock()
	defer e.mu.Unlock()

	for !e.stopped {
		e.mu.Unlock()
		e.sleep()
		e.mu.Lock()

		if !e.step() {
			break
		}
	}

	if e.outputOpened {
		e.dev.Close()
		e.outputOpened = false
	}
	e.ring = nil
	e.stopped = false
	logging.Debugf("Engine: output worker finished")
}

// step 执行一轮输出，返回 false 时输出 goroutine 退出
func (e *Engine) step() bool {
	now := e.now()
	stopping := false

	if !e.opened {
		current := e.host != nil && e.host.InputPlaying()
		timeout := int64(-1)
		if !e.lastClose.IsZero() {
			timeout = now.Sub(e.lastClose).Milliseconds()
		}
		if current != e.inputPlaying {
			e.inputPlaying = current
			logging.Debugf("Engine: input playing %v (%d ms since close)", current, timeout)
		}
		if e.inputPlaying && e.cfg.Output.KeepOpened && e.ring.Used() == 0 {
			e.ring.InsertSilence(e.outFormat.MsToBytes(keepOpenedSilenceMs))
		}
		if (timeout < 0 || timeout >= int64(e.cfg.InputTimeoutMs)) && !e.inputPlaying {
			stopping = true
		}
	}

	sinceWrite := int(now.Sub(e.lastWrite).Milliseconds())

	if stopping {
		if e.playing {
			if !e.stopPlayback() {
				return false
			}
		} else {
			if !e.eop {
				e.endOfPlaylist()
			}
			if e.ring.Used() == 0 {
				if e.cfg.Output.KeepOpened {
					e.ring.InsertSilence(e.outFormat.MsToBytes(keepOpenedSilenceMs))
				} else if e.ring.SilenceLen() <= 0 {
					e.syncOutput()
					if !e.opened {
						logging.Debugf("Engine: playback finished")
						return false
					}
					e.eop = false
				}
			}
		}
	} else {
		e.eop = false
	}

	free := e.dev.BufferFree() &^ 3
	if free <= 0 {
		return true
	}
	if e.cfg.OpMaxUsedEnable {
		free = e.limitDeviceUse(free, sinceWrite)
	}

	plugin := e.cfg.Output.Plugin
	opt := buffer.DrainOptions{
		Paused:   e.paused,
		Throttle: plugin.Throttle && e.opened && sinceWrite < e.cfg.SongchangeTimeoutMs,
	}
	if plugin.MaxWriteEnable {
		opt.MaxWrite = plugin.MaxWriteLen
	}
	res := e.ring.Drain(e.dev, free, opt)
	n := int64(res.Written())
	e.outputWritten += n
	e.outputStreampos += n

	if res.Reopen && !e.reopenOutput(res.ReopenSync) {
		return false
	}
	if res.Pause {
		e.paused = true
		e.syncOutput()
		if e.paused {
			e.dev.Pause(true)
		} else {
			logging.Debugf("Engine: resumed during pause sync")
		}
	}
	return true
}

// stopPlayback 宿主停止播放后淡出剩余数据
func (e *Engine) stopPlayback() bool {
	stop := e.cfg.FadeConfig(fade.ScenarioStop)
	if stop.Type == fade.TypeNone && !e.cfg.Output.KeepOpened {
		return false
	}
	if e.paused {
		e.paused = false
		if !e.cfg.Output.KeepOpened {
			return false
		}
		e.dev.Pause(false)
	} else if e.ring.PausePending() {
		e.ring.CancelPause()
	}

	logging.Debugf("Engine: playback stopped, applying %s", stop.Type)
	e.ring.ApplyFadeConfig(stop, e.outFormat)
	e.fadeConfig = e.cfg.FadeConfig(fade.ScenarioStart)
	e.playing = false
	e.eop = true
	return true
}

// endOfPlaylist 播放列表结束：恢复裁掉的尾部静音，然后按 eop 场景处理
func (e *Engine) endOfPlaylist() {
	if n := e.ring.UndoTrailingGap(); n > 0 {
		logging.Debugf("Engine: restored %d ms of trailing gap", e.outFormat.BytesToMs(n))
	}
	eop := e.cfg.FadeConfig(fade.ScenarioEOP)
	if eop.Type != fade.TypeNone {
		logging.Debugf("Engine: end of playlist, applying %s", eop.Type)
		e.ring.ApplyFadeConfig(eop, e.outFormat)
	}
	e.fadeConfig = e.cfg.FadeConfig(fade.ScenarioStart)
	e.eop = true
}

// limitDeviceUse 限制设备内部缓冲的数据量。换曲后不久保证每轮至少写入 5ms，
// 避免设备欠载。
func (e *Engine) limitDeviceUse(free, sinceWrite int) int {
	outputTime := e.dev.OutputTime()
	if e.outputFlushTime == outputTime {
		return free
	}
	maxUsed := e.cfg.OpMaxUsedMs
	used := e.dev.WrittenTime() - outputTime
	limit := e.outFormat.MsToBytes(maxUsed - min(used, maxUsed))

	if sinceWrite < e.cfg.SongchangeTimeoutMs {
		limit = max(limit, e.inFormat.BPS/200)
		return min(free, limit)
	}
	if used < maxUsed && free > limit {
		return limit
	}
	return min(free, minDeviceWrite)
}
