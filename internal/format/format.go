// Package format 描述 PCM 采样格式，并把任意输入格式转换为内部使用的 16 位小端立体声。
package format

import (
	"errors"
	"fmt"
)

// Kind 采样类型
type Kind int

const (
	KindU8 Kind = iota
	KindS8
	KindU16LE
	KindU16BE
	KindU16NE
	KindS16LE
	KindS16BE
	KindS16NE
)

var kindNames = map[Kind]string{
	KindU8:    "u8",
	KindS8:    "s8",
	KindU16LE: "u16le",
	KindU16BE: "u16be",
	KindU16NE: "u16ne",
	KindS16LE: "s16le",
	KindS16BE: "s16be",
	KindS16NE: "s16ne",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind 按名称查找采样类型
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Is8Bit 是否为 8 位采样
func (k Kind) Is8Bit() bool {
	return k == KindU8 || k == KindS8
}

// ErrInvalidFormat 格式协商失败
var ErrInvalidFormat = errors.New("invalid audio format")

// FormatError 描述具体是哪个字段不合法
type FormatError struct {
	Field   string
	Value   int
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format %s=%d: %s", e.Field, e.Value, e.Message)
}

func (e *FormatError) Unwrap() error {
	return ErrInvalidFormat
}

const (
	MinRate = 1
	MaxRate = 65535
)

// Format 协商后的音频格式。BPS 大于 0 当且仅当格式有效。
type Format struct {
	Kind     Kind
	Rate     int
	Channels int
	BPS      int
}

// Negotiate 校验并生成格式描述
func Negotiate(kind Kind, rate, channels int) (Format, error) {
	if _, ok := kindNames[kind]; !ok {
		return Format{}, &FormatError{Field: "kind", Value: int(kind), Message: "unsupported sample kind"}
	}
	if rate < MinRate || rate > MaxRate {
		return Format{}, &FormatError{Field: "rate", Value: rate, Message: "out of range"}
	}
	if channels != 1 && channels != 2 {
		return Format{}, &FormatError{Field: "channels", Value: channels, Message: "must be 1 or 2"}
	}
	bytes := 2
	if kind.Is8Bit() {
		bytes = 1
	}
	return Format{
		Kind:     kind,
		Rate:     rate,
		Channels: channels,
		BPS:      rate * channels * bytes,
	}, nil
}

// Output 内部输出格式：16 位小端立体声
func Output(rate int) (Format, error) {
	return Negotiate(KindS16LE, rate, 2)
}

func (f Format) Valid() bool {
	return f.BPS > 0
}

// FrameSize 每帧字节数
func (f Format) FrameSize() int {
	if f.Rate == 0 {
		return 0
	}
	return f.BPS / f.Rate
}

// MsToBytes 毫秒转字节，结果按 4 字节对齐
func (f Format) MsToBytes(ms int) int {
	return int(int64(ms)*int64(f.BPS)/1000) &^ 3
}

// BytesToMs 字节转毫秒
func (f Format) BytesToMs(n int) int {
	if f.BPS == 0 {
		return 0
	}
	return int(int64(n) * 1000 / int64(f.BPS))
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%dHz/%dch", f.Kind, f.Rate, f.Channels)
}
