package buffer

import "github.com/liuscraft/crossfade/internal/logging"

// Sink 接收输出数据的下游设备
type Sink interface {
	Write(p []byte)
}

// DrainOptions 单次输出的限制条件
type DrainOptions struct {
	Paused bool
	// Throttle 按同步区剩余空间限制输出
	Throttle bool
	// MaxWrite 单次设备写入的最大字节数，0 表示不限制
	MaxWrite int
}

// DrainResult 一次输出的结果。Reopen 和 Pause 表示对应倒计数已到期，
// 由调用方执行相应动作；重开完成后调用方需调用 CompleteReopen。
type DrainResult struct {
	Data    int
	Silence int

	Reopen     bool
	ReopenSync bool
	Pause      bool
}

// Written 输出到设备的总字节数
func (d DrainResult) Written() int {
	return d.Data + d.Silence
}

const silenceChunk = 4096

// Drain 最多向 w 输出 max 字节，先输出待插入的静音，否则输出缓冲数据，
// 然后推进静音、重开和暂停倒计数。
func (r *Ring) Drain(w Sink, max int, opt DrainOptions) DrainResult {
	var res DrainResult
	max &^= 3

	if !opt.Paused && r.silence <= 0 && r.silenceLen >= FrameSize {
		length := min(r.silenceLen, max) &^ 3
		res.Silence = r.writeSilence(w, length, opt.MaxWrite)
	} else if !opt.Paused && r.preload <= 0 && r.used >= FrameSize {
		length := min(r.used, max)

		if opt.Throttle {
			sync := r.syncSize - (r.size - r.used)
			if sync < 0 {
				length = 0
			} else if sync < length {
				length = sync
			}
		}
		if r.silence >= FrameSize && r.silence < length {
			length = r.silence
		}
		if r.reopen.active && r.reopen.n < length {
			length = r.reopen.n
		}
		if r.pause.active && r.pause.n < length {
			length = r.pause.n
		}
		length &^= 3
		res.Data = r.writeData(w, length, opt.MaxWrite)
	}

	n := res.Written()
	if r.silence > 0 {
		r.silence -= n
		if r.silence < 0 {
			logging.Warnf("RingBuffer: silence overrun by %d bytes", -r.silence)
		}
	} else if r.silenceLen > 0 {
		r.silenceLen -= n
		if r.silenceLen < 0 {
			logging.Warnf("RingBuffer: silence_len overrun by %d bytes", -r.silenceLen)
		}
	}

	if r.reopen.active && !(r.silence <= 0 && r.silenceLen > 0) {
		r.reopen.n -= n
		if r.reopen.n <= 0 {
			if r.reopen.n < 0 {
				logging.Warnf("RingBuffer: reopen overrun by %d bytes", -r.reopen.n)
			}
			res.Reopen = true
			res.ReopenSync = r.reopenSync
			r.reopen.n = 0
		}
	}

	if r.pause.active {
		r.pause.n -= n
		if r.pause.n <= 0 {
			if r.pause.n < 0 {
				logging.Warnf("RingBuffer: pause overrun by %d bytes", -r.pause.n)
			}
			res.Pause = true
			r.pause.cancel()
		}
	}
	return res
}

func (r *Ring) writeSilence(w Sink, length, maxWrite int) int {
	chunk := silenceChunk
	if limit := writeLimit(maxWrite); limit > 0 && limit < chunk {
		chunk = limit
	}
	if len(r.zeros) < chunk {
		r.zeros = make([]byte, chunk)
	}
	done := 0
	for done < length {
		n := min(length-done, chunk)
		buf := r.zeros[:n]
		clear(buf)
		w.Write(buf)
		done += n
	}
	return done
}

func (r *Ring) writeData(w Sink, length, maxWrite int) int {
	limit := writeLimit(maxWrite)
	done := 0
	for done < length {
		n := min(r.size-r.rd, length-done)
		if limit > 0 && n > limit {
			n = limit
		}
		w.Write(r.data[r.rd : r.rd+n])
		r.rd = (r.rd + n) % r.size
		r.used -= n
		done += n
	}
	return done
}

// writeLimit 单次写入上限按帧对齐，至少一帧
func writeLimit(maxWrite int) int {
	if maxWrite <= 0 {
		return 0
	}
	return max(maxWrite&^3, FrameSize)
}
