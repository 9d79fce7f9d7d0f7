// Package rate 对 16 位立体声 PCM 做采样率转换，并完成软件音量和 16 位量化。
package rate

import (
	"math"
	"time"

	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
)

// Quality 转换质量，数值沿用插件配置中的 output_quality
type Quality int

const (
	QualityBest Quality = iota
	QualityMedium
	QualityFastest
	QualityZeroOrderHold
	// QualityLinear 使用最小公倍数线性插值
	QualityLinear
)

// Volume 软件音量设置，百分比 0..100
type Volume struct {
	Software bool
	Left     int
	Right    int
}

// VolumeFactor 对数音量曲线：每 4% 衰减 1dB，0% 时衰减 maxDB
func VolumeFactor(percent int, maxDB float64) float32 {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	db := maxDB * float64(100-percent) / 100
	return float32(math.Pow(10, -db/20))
}

const volumeRangeDB = 25

// processor 高质量重采样器，输入输出为交错的归一化采样
type processor interface {
	Process(input []float64) ([]float64, error)
}

// Converter 采样率转换器，非并发安全
type Converter struct {
	inRate  int
	outRate int
	quality Quality
	valid   bool

	hq processor

	// 线性插值状态
	inSkip  int64
	outSkip int64
	inOfs   int64
	outOfs  int64
	started bool
	lastL   float64
	lastR   float64

	in  []float64
	out []byte

	clips      int
	lastReport time.Time
	now        func() time.Time
}

func New() *Converter {
	return &Converter{now: time.Now}
}

func (c *Converter) Valid() bool {
	return c.valid
}

func (c *Converter) InRate() int {
	return c.inRate
}

func (c *Converter) OutRate() int {
	return c.outRate
}

// Configure 重建转换状态。非法采样率只记录日志，不做任何修改。
func (c *Converter) Configure(inRate, outRate int, q Quality) {
	if inRate < format.MinRate || inRate > format.MaxRate ||
		outRate < format.MinRate || outRate > format.MaxRate {
		logging.Warnf("RateConverter: illegal rates (in=%d, out=%d)", inRate, outRate)
		return
	}

	c.inRate = inRate
	c.outRate = outRate
	c.quality = q
	c.hq = nil
	c.valid = false

	lcm := int64(inRate) / gcd(int64(inRate), int64(outRate)) * int64(outRate)
	c.inSkip = lcm / int64(inRate)
	c.outSkip = lcm / int64(outRate)
	c.inOfs = 0
	c.outOfs = 0
	c.started = false

	if inRate != outRate && q != QualityLinear {
		c.hq = newLagrange(inRate, outRate, lagrangeQuality(q))
	}
	logging.Debugf("RateConverter: configured %d -> %d (quality=%d, hq=%v)", inRate, outRate, q, c.hq != nil)
	c.valid = true
}

// lagrangeQuality 插值点数的一半，越大越精确
func lagrangeQuality(q Quality) int {
	switch q {
	case QualityBest:
		return 16
	case QualityMedium:
		return 6
	case QualityFastest:
		return 3
	}
	return 1
}

// Process 转换 16 位小端立体声采样。返回的切片在下一次调用前有效；
// 不足一帧的尾部字节被丢弃。
func (c *Converter) Process(samples []byte, vol Volume) []byte {
	c.reportClips()

	if rem := len(samples) & 3; rem != 0 {
		logging.Warnf("RateConverter: truncating %d bytes", rem)
		samples = samples[:len(samples)&^3]
	}
	frames := len(samples) / 4
	if frames == 0 {
		return samples[:0]
	}

	scaleL, scaleR := float64(1), float64(1)
	if vol.Software {
		scaleL = float64(VolumeFactor(vol.Left, volumeRangeDB))
		scaleR = float64(VolumeFactor(vol.Right, volumeRangeDB))
	}

	if c.inRate == c.outRate || !c.valid {
		out := c.grow(frames * 4)
		for i := 0; i < frames*2; i += 2 {
			format.PutSample(out, i, c.quantize(float64(format.Sample(samples, i)), scaleL, vol.Software))
			format.PutSample(out, i+1, c.quantize(float64(format.Sample(samples, i+1)), scaleR, vol.Software))
		}
		return out
	}

	if c.hq != nil {
		return c.processHQ(samples, frames, scaleL, scaleR, vol.Software)
	}
	return c.processLinear(samples, frames, scaleL, scaleR, vol.Software)
}

func (c *Converter) processHQ(samples []byte, frames int, scaleL, scaleR float64, software bool) []byte {
	if cap(c.in) < frames*2 {
		c.in = make([]float64, frames*2)
	}
	in := c.in[:frames*2]
	for i := range in {
		in[i] = float64(format.Sample(samples, i)) / 32768
	}
	res, err := c.hq.Process(in)
	if err != nil {
		logging.Errorf("RateConverter: resample error: %v", err)
		return samples[:0]
	}
	n := len(res) / 2
	out := c.grow(n * 4)
	for i := 0; i < n*2; i += 2 {
		format.PutSample(out, i, c.quantize(res[i]*32768, scaleL, software))
		format.PutSample(out, i+1, c.quantize(res[i+1]*32768, scaleR, software))
	}
	return out
}

// processLinear 最小公倍数线性插值：
//
//	lcm = lcm(inRate, outRate)
//	输入每帧占 inSkip = lcm/inRate 个单位，输出每帧占 outSkip = lcm/outRate 个单位
//	输出 = last + (next - last) * (outOfs - inOfs) / inSkip
func (c *Converter) processLinear(samples []byte, frames int, scaleL, scaleR float64, software bool) []byte {
	maxOut := int(int64(frames)*c.inSkip/c.outSkip) + 1
	out := c.grow(maxOut * 4)[:0]

	if !c.started {
		c.lastL = float64(format.Sample(samples, 0))
		c.lastR = float64(format.Sample(samples, 1))
		c.started = true
	}

	idx := 0
	for c.inOfs+c.inSkip <= c.outOfs && idx < frames {
		c.lastL = float64(format.Sample(samples, idx*2))
		c.lastR = float64(format.Sample(samples, idx*2+1))
		c.inOfs += c.inSkip
		idx++
	}
	if idx == frames {
		return out
	}

	var frame [4]byte
	for {
		nextL := float64(format.Sample(samples, idx*2))
		nextR := float64(format.Sample(samples, idx*2+1))
		pos := float64(c.outOfs-c.inOfs) / float64(c.inSkip)
		format.PutSample(frame[:], 0, c.quantize(c.lastL+(nextL-c.lastL)*pos, scaleL, software))
		format.PutSample(frame[:], 1, c.quantize(c.lastR+(nextR-c.lastR)*pos, scaleR, software))
		out = append(out, frame[:]...)

		c.outOfs += c.outSkip
		for c.inOfs+c.inSkip <= c.outOfs {
			c.lastL = nextL
			c.lastR = nextR
			c.inOfs += c.inSkip
			idx++
			if idx == frames {
				return out
			}
			nextL = float64(format.Sample(samples, idx*2))
			nextR = float64(format.Sample(samples, idx*2+1))
		}

		// 长时间运行时计数器会溢出，对齐时归零
		if c.outOfs == c.inOfs {
			c.outOfs = 0
			c.inOfs = 0
		}
	}
}

func (c *Converter) quantize(v, scale float64, software bool) int16 {
	if software {
		v *= scale
	}
	v = math.RoundToEven(v)
	if v > 32767 || v < -32768 {
		c.clips++
		v = math.Max(-32768, math.Min(32767, v))
	}
	return int16(v)
}

// Clips 自上次报告以来被截断的采样数
func (c *Converter) Clips() int {
	return c.clips
}

// reportClips 每秒最多报告一次截断
func (c *Converter) reportClips() {
	now := c.now()
	dt := now.Sub(c.lastReport)
	if (dt < 0 || dt > time.Second) && c.clips > 0 {
		logging.Warnf("RateConverter: %d samples clipped", c.clips)
		c.clips = 0
		c.lastReport = now
	}
}

func (c *Converter) grow(n int) []byte {
	if cap(c.out) < n {
		c.out = make([]byte, n)
	}
	return c.out[:n]
}

func gcd(m, n int64) int64 {
	for n != 0 {
		m, n = n, m%n
	}
	return m
}
