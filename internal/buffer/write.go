package buffer

import (
	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
)

// WriteResult 一次写入的结果
type WriteResult struct {
	// Stored 实际进入缓冲区的字节数（含重叠混音部分）
	Stored int
	// GapKilled 本次写入结束首部静音检测时，被删除的静音字节数
	GapKilled   int
	GapFinished bool
}

// Write 把一段 16 位小端立体声数据写入缓冲区。
// 淡入直接修改 p 的内容，调用方不应再使用 p。
func (r *Ring) Write(p []byte) WriteResult {
	var res WriteResult

	if rem := len(p) & 3; rem != 0 {
		logging.Warnf("RingBuffer: truncating %d bytes", rem)
		p = p[:len(p)&^3]
	}
	if free := r.size - r.used; len(p) > free {
		logging.Errorf("RingBuffer: %d bytes possible overrun, truncating", len(p)-free)
		p = p[:free]
	}

	// 首部静音
	if len(p) > 0 && r.gap.phase == gapKilling && r.gap.remaining > 0 {
		blen := min(len(p), r.gap.remaining)
		idx := 0
		for idx < blen {
			if abs16(format.Sample(p[idx:], 0)) >= r.gap.level ||
				abs16(format.Sample(p[idx:], 1)) >= r.gap.level {
				break
			}
			idx += FrameSize
		}
		r.gap.remaining -= idx
		p = p[idx:]
		if idx < blen || r.gap.remaining <= 0 {
			r.gap.killed = r.gap.length - r.gap.remaining
			r.gap.remaining = 0
			r.gap.phase = gapIdle
			res.GapKilled = r.gap.killed
			res.GapFinished = true
			logging.Debugf("RingBuffer: leading gap done, killed %d bytes of %d", r.gap.killed, r.gap.length)
		}
	}

	if r.gap.phase == gapIdle {
		if r.gap.crossing {
			r.gap.phase = gapSkipPositive
			r.gap.skipped = 0
		} else {
			r.gap.phase = gapDone
		}
	}

	// 跳到下一个由正到负的过零点
	if len(p) > 0 && r.gap.phase == gapSkipPositive {
		idx := 0
		for idx < len(p) && format.Sample(p[idx:], 0) >= 0 {
			idx += FrameSize
		}
		r.gap.skipped += idx
		found := idx < len(p)
		p = p[idx:]
		if found {
			r.gap.phase = gapSkipNegative
		}
	}

	// 再跳到由负到正的过零点
	if len(p) > 0 && r.gap.phase == gapSkipNegative {
		idx := 0
		for idx < len(p) && format.Sample(p[idx:], 0) < 0 {
			idx += FrameSize
		}
		r.gap.skipped += idx
		found := idx < len(p)
		p = p[idx:]
		if found {
			logging.Debugf("RingBuffer: zero crossing found after %d bytes", r.gap.skipped)
			r.gap.phase = gapDone
		}
	}

	if len(p) > 0 && r.preload > 0 {
		r.preload -= len(p)
	}

	// 淡入
	if len(p) > 0 && r.fade > 0 {
		blen := min(len(p), r.fade)
		for i := 0; i+FrameSize <= blen; i += FrameSize {
			factor := 1 - float32(r.fade)/float32(r.fadeLen)*r.fadeScale
			format.PutSample(p[i:], 0, int16(float32(format.Sample(p[i:], 0))*factor))
			format.PutSample(p[i:], 1, int16(float32(format.Sample(p[i:], 1))*factor))
			r.fade -= FrameSize
		}
	}

	res.Stored = len(p)

	// 与已有数据叠加
	for len(p) > 0 && r.mix > 0 {
		wr := (r.rd + r.used) % r.size
		blen := min(r.size-wr, len(p), r.mix)
		for i := 0; i < blen; i += 2 {
			sum := int32(r.sample(wr+i)) + int32(format.Sample(p[i:], 0))
			r.putSample(wr+i, saturate(sum))
		}
		r.used += blen
		r.mix -= blen
		p = p[blen:]
	}

	for len(p) > 0 {
		wr := (r.rd + r.used) % r.size
		n := copy(r.data[wr:], p)
		r.used += n
		p = p[n:]
	}
	return res
}
