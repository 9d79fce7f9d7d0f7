package rate

import "github.com/gopxl/beep/v2"

// beep 每次向输入索取 lagrangeBlock 帧，读到不足一块时认为输入已结束
const lagrangeBlock = 512

// lagrange 基于 beep.Resampler 的多项式插值。beep 以拉取方式工作，
// 这里缓存推入的输入，只取插值窗口完全落在整块输入内的输出帧。
type lagrange struct {
	rs      *beep.Resampler
	ratio   float64
	quality int

	pending [][2]float64
	queued  int
	emitted int
	buf     [][2]float64
}

func newLagrange(inRate, outRate, quality int) *lagrange {
	l := &lagrange{
		ratio:   float64(inRate) / float64(outRate),
		quality: quality,
	}
	l.rs = beep.Resample(quality, beep.SampleRate(inRate), beep.SampleRate(outRate), beep.StreamerFunc(l.pull))
	return l
}

func (l *lagrange) pull(samples [][2]float64) (int, bool) {
	n := copy(samples, l.pending)
	l.pending = l.pending[n:]
	return n, true
}

// ready 当前输入足够算出的输出帧数
func (l *lagrange) ready() int {
	full := l.queued / lagrangeBlock * lagrangeBlock
	n := 0
	for int(float64(l.emitted+n)*l.ratio)+l.quality+1 <= full {
		n++
	}
	return n
}

// Process 输入输出均为交错的立体声归一化采样
func (l *lagrange) Process(input []float64) ([]float64, error) {
	for i := 0; i+1 < len(input); i += 2 {
		l.pending = append(l.pending, [2]float64{input[i], input[i+1]})
	}
	l.queued += len(input) / 2

	n := l.ready()
	if n == 0 {
		return nil, nil
	}
	if cap(l.buf) < n {
		l.buf = make([][2]float64, n)
	}
	got, _ := l.rs.Stream(l.buf[:n])
	l.emitted += got

	out := make([]float64, 0, got*2)
	for _, s := range l.buf[:got] {
		out = append(out, s[0], s[1])
	}
	return out, l.rs.Err()
}
