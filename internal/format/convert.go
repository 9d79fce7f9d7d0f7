package format

import "encoding/binary"

// Converter 把输入 PCM 转换为 16 位小端立体声，内部缓冲区在调用之间复用。
// 返回的切片在下一次 Convert 前有效。
type Converter struct {
	buf []byte
}

func NewConverter() *Converter {
	return &Converter{}
}

// Convert 转换 src，采样率保持不变。不完整的帧被丢弃。
func (c *Converter) Convert(src []byte, f Format) []byte {
	if !f.Valid() {
		return nil
	}
	sampleBytes := 2
	if f.Kind.Is8Bit() {
		sampleBytes = 1
	}
	frameBytes := sampleBytes * f.Channels
	frames := len(src) / frameBytes

	// 已经是目标格式时直接返回
	if f.Channels == 2 && (f.Kind == KindS16LE || (f.Kind == KindS16NE && nativeLittle)) {
		return src[:frames*4]
	}

	need := frames * 4
	if cap(c.buf) < need {
		c.buf = make([]byte, need)
	}
	out := c.buf[:need]

	for i := 0; i < frames; i++ {
		in := src[i*frameBytes:]
		l := sampleAt(in, f.Kind)
		r := l
		if f.Channels == 2 {
			r = sampleAt(in[sampleBytes:], f.Kind)
		}
		binary.LittleEndian.PutUint16(out[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(r))
	}
	return out
}

func sampleAt(p []byte, kind Kind) int16 {
	switch kind {
	case KindU8:
		return int16(int(p[0])-128) << 8
	case KindS8:
		return int16(int8(p[0])) << 8
	case KindS16LE:
		return int16(binary.LittleEndian.Uint16(p))
	case KindS16BE:
		return int16(binary.BigEndian.Uint16(p))
	case KindS16NE:
		return int16(binary.NativeEndian.Uint16(p))
	case KindU16LE:
		return int16(binary.LittleEndian.Uint16(p) ^ 0x8000)
	case KindU16BE:
		return int16(binary.BigEndian.Uint16(p) ^ 0x8000)
	case KindU16NE:
		return int16(binary.NativeEndian.Uint16(p) ^ 0x8000)
	}
	return 0
}

var nativeLittle = func() bool {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 1)
	return b[0] == 1
}()

// Sample 读取第 i 个 16 位小端采样
func Sample(p []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(p[i*2:]))
}

// PutSample 写入第 i 个 16 位小端采样
func PutSample(p []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(p[i*2:], uint16(v))
}
