package effect

import "github.com/liuscraft/crossfade/internal/format"

func init() {
	Register("swap", func() Effect { return swapChannels{} })
	Register("downmix", func() Effect { return &downmix{} })
}

func isS16(k format.Kind) bool {
	return k == format.KindS16LE
}

// swapChannels 交换左右声道，只处理 16 位小端立体声
type swapChannels struct{}

func (swapChannels) Name() string { return "swap" }

func (swapChannels) Flow(samples []byte, f *format.Format) []byte {
	if !isS16(f.Kind) || f.Channels != 2 {
		return samples
	}
	for i := 0; i+4 <= len(samples); i += 4 {
		samples[i], samples[i+2] = samples[i+2], samples[i]
		samples[i+1], samples[i+3] = samples[i+3], samples[i+1]
	}
	return samples
}

// downmix 把立体声混成单声道，输出格式的声道数变为 1
type downmix struct {
	buf []byte
}

func (*downmix) Name() string { return "downmix" }

func (d *downmix) Flow(samples []byte, f *format.Format) []byte {
	if !isS16(f.Kind) || f.Channels != 2 {
		return samples
	}
	frames := len(samples) / 4
	if cap(d.buf) < frames*2 {
		d.buf = make([]byte, frames*2)
	}
	out := d.buf[:frames*2]
	for i := 0; i < frames; i++ {
		l := int32(format.Sample(samples, i*2))
		r := int32(format.Sample(samples, i*2+1))
		format.PutSample(out, i, int16((l+r)/2))
	}
	f.Channels = 1
	return out
}
