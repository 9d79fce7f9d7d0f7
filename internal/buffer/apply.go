package buffer

import (
	"github.com/liuscraft/crossfade/internal/fade"
	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
)

// ApplyFadeConfig 按过渡参数处理缓冲区：淡出已有数据的尾部，
// 并为后续写入准备淡入、重叠混音或静音。out 用于毫秒和字节的换算。
func (r *Ring) ApplyFadeConfig(fc *fade.Config, out format.Format) {
	outScale := 1 - float32(fc.FadeOutVolume())/100
	inScale := 1 - float32(fc.FadeInVolume())/100

	avail := r.used - r.preloadSize
	if avail < 0 {
		avail = 0
	}

	outLen := out.MsToBytes(fc.FadeOutLen())
	if outLen > avail {
		logging.Warnf("RingBuffer: %s: fadeout clipped (%d -> %d ms)",
			fc.Scenario, out.BytesToMs(outLen), out.BytesToMs(avail))
		outLen = avail
	}
	if outLen < 0 {
		outLen = 0
	}

	inLen := out.MsToBytes(fc.FadeInLen())
	if inLen < 0 {
		inLen = 0
	}

	offset := out.MsToBytes(fc.Offset())
	if offset < -avail {
		logging.Warnf("RingBuffer: %s: offset clipped (%d -> %d ms)",
			fc.Scenario, out.BytesToMs(offset), -out.BytesToMs(avail))
		offset = -avail
	}
	if limit := r.mixSize - outLen; offset > limit {
		offset = limit
	}

	skip := r.used
	if skip > r.preloadSize {
		skip = r.preloadSize
	}
	logging.Debugf("RingBuffer: %s: used=%d avail=%d skip=%d out=%d in=%d offset=%d",
		fc.Scenario, r.used, avail, skip, outLen, inLen, offset)

	if fc.Flush {
		cutoff := avail - outLen
		if -offset > outLen {
			cutoff = avail + offset
		}
		if cutoff > 0 {
			logging.Debugf("RingBuffer: %s: dropping %d ms", fc.Scenario, out.BytesToMs(cutoff))
			r.used -= cutoff
			avail -= cutoff
		}
		r.silence = 0
		r.silenceLen = 0
	}

	if outLen > 0 {
		idx := (r.rd + r.used - outLen) % r.size
		for done := 0; done < outLen; done += FrameSize {
			factor := 1 - float32(done)/float32(outLen)*outScale
			r.scaleFrame(idx, factor)
			idx = (idx + FrameSize) % r.size
		}
	}

	if inLen > 0 {
		r.fade = inLen
		r.fadeLen = inLen
		r.fadeScale = inScale
	} else {
		r.fade = 0
	}

	if offset < 0 {
		r.mix = -offset
		r.used -= r.mix
	} else {
		r.mix = 0
	}

	if offset > 0 {
		if r.silenceLen > 0 || r.silence > 0 {
			logging.Warnf("RingBuffer: %s: silence already in progress (%d/%d)",
				fc.Scenario, r.silence, r.silenceLen)
		}
		r.silence = r.used
		r.silenceLen = offset
	}
}

// PauseFade 从读位置开始原地淡出 out 字节、再淡入 in 字节，
// 两者之间插入 silence 字节静音，输出完淡出和静音后进入暂停。
func (r *Ring) PauseFade(out, in, silence int) {
	out &^= 3
	in &^= 3
	silence &^= 3
	if out+in > r.used {
		out = (r.used / 2) &^ 3
		in = out
	}

	idx := r.rd
	for done := 0; done < out; done += FrameSize {
		r.scaleFrame(idx, 1-float32(done)/float32(out))
		idx = (idx + FrameSize) % r.size
	}
	for done := 0; done < in; done += FrameSize {
		r.scaleFrame(idx, float32(done)/float32(in))
		idx = (idx + FrameSize) % r.size
	}

	r.silence = out
	r.silenceLen = silence
	r.pause.arm(out + silence)
}
