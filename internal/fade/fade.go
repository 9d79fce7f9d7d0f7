// Package fade 描述每种过渡场景的淡入淡出参数以及由参数推导出的时长和音量。
package fade

import "fmt"

// Scenario 过渡场景
type Scenario int

const (
	ScenarioXfade Scenario = iota
	ScenarioManual
	ScenarioAlbum
	ScenarioStart
	ScenarioStop
	ScenarioEOP
	ScenarioSeek
	ScenarioPause
	ScenarioTiming

	NumScenarios
)

var scenarioNames = [NumScenarios]string{
	"xfade", "manual", "album", "start", "stop", "eop", "seek", "pause", "timing",
}

func (s Scenario) String() string {
	if s < 0 || s >= NumScenarios {
		return fmt.Sprintf("scenario(%d)", int(s))
	}
	return scenarioNames[s]
}

// Type 过渡方式
type Type int

const (
	TypeReopen Type = iota
	TypeFlush
	TypeNone
	TypePause
	TypeSimpleXF
	TypeAdvancedXF
	TypeFadeIn
	TypeFadeOut
	TypePauseNone
	TypePauseAdv

	numTypes
)

var typeNames = [numTypes]string{
	"reopen", "flush", "none", "pause", "simple_xf", "advanced_xf",
	"fadein", "fadeout", "pause_none", "pause_adv",
}

func (t Type) String() string {
	if t < 0 || t >= numTypes {
		return fmt.Sprintf("type(%d)", int(t))
	}
	return typeNames[t]
}

// Mask 允许的过渡方式集合
type Mask uint32

func maskOf(types ...Type) Mask {
	var m Mask
	for _, t := range types {
		m |= 1 << uint(t)
	}
	return m
}

// Has 判断 t 是否在集合中
func (m Mask) Has(t Type) bool {
	if t < 0 || t >= numTypes {
		return false
	}
	return m&(1<<uint(t)) != 0
}

// OffsetType 偏移量的计算方式
type OffsetType int

const (
	OffsetNone OffsetType = iota
	OffsetLockIn
	OffsetLockOut
	OffsetCustom
)

// Config 单个场景的过渡参数，时长单位为毫秒，音量为 0..100
type Config struct {
	Scenario Scenario
	Type     Type

	PauseLenMs  int
	SimpleLenMs int

	OutEnable bool
	OutLenMs  int
	OutVolume int

	OffsetType       OffsetType
	OffsetTypeWanted OffsetType
	OffsetCustomMs   int

	InLocked bool
	InEnable bool
	InLenMs  int
	InVolume int

	FlushPauseEnable bool
	FlushPauseLenMs  int
	FlushInEnable    bool
	FlushInLenMs     int
	FlushInVolume    int

	// Flush 为 true 时应用配置会先丢弃多余的缓冲数据
	Flush bool

	TypeMask Mask
}

// Allows 判断该场景是否允许使用 t
func (c *Config) Allows(t Type) bool {
	return c.TypeMask.Has(t)
}

// FadeOutLen 淡出时长 (ms)
func (c *Config) FadeOutLen() int {
	switch c.Type {
	case TypeSimpleXF:
		return c.SimpleLenMs
	case TypeAdvancedXF:
		if c.OutEnable {
			return c.OutLenMs
		}
		return 0
	case TypeFadeOut, TypePauseAdv:
		return c.OutLenMs
	}
	return 0
}

// FadeOutVolume 淡出结束时的音量百分比
func (c *Config) FadeOutVolume() int {
	switch c.Type {
	case TypeAdvancedXF, TypeFadeOut:
		return clampPercent(c.OutVolume)
	}
	return 0
}

// Offset 新曲目相对旧曲目结尾的偏移 (ms)，负数表示重叠，正数表示插入静音
func (c *Config) Offset() int {
	switch c.Type {
	case TypeFlush:
		if c.FlushPauseEnable {
			return c.FlushPauseLenMs
		}
		return 0
	case TypePause:
		return c.PauseLenMs
	case TypeSimpleXF:
		return -c.SimpleLenMs
	case TypeAdvancedXF:
		switch c.OffsetType {
		case OffsetLockOut:
			return -c.OutLenMs
		case OffsetLockIn:
			return -c.InLenMs
		case OffsetCustom:
			return c.OffsetCustomMs
		}
		return 0
	case TypeFadeOut, TypePauseAdv:
		return c.OffsetCustomMs
	}
	return 0
}

// FadeInLen 淡入时长 (ms)
func (c *Config) FadeInLen() int {
	switch c.Type {
	case TypeFlush:
		if c.FlushInEnable {
			return c.FlushInLenMs
		}
		return 0
	case TypeSimpleXF:
		return c.SimpleLenMs
	case TypeAdvancedXF:
		if c.InLocked {
			if c.OutEnable {
				return c.OutLenMs
			}
			return 0
		}
		if c.InEnable {
			return c.InLenMs
		}
		return 0
	case TypeFadeIn, TypePauseAdv:
		return c.InLenMs
	}
	return 0
}

// FadeInVolume 淡入起始音量百分比
func (c *Config) FadeInVolume() int {
	var v int
	switch c.Type {
	case TypeFlush:
		v = c.FlushInVolume
	case TypeAdvancedXF:
		if c.InLocked {
			v = c.OutVolume
		} else {
			v = c.InVolume
		}
	case TypeFadeIn:
		v = c.InVolume
	}
	return clampPercent(v)
}

// Span 该配置需要在缓冲区中保留的最长时间 (ms)
func (c *Config) Span() int {
	n := c.FadeOutLen()
	if c.Type == TypePauseAdv {
		n += c.FadeInLen()
	}
	if ofs := -c.Offset(); ofs > n {
		n = ofs
	}
	return n
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
