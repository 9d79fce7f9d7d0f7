package fade

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Table 全部场景的过渡参数，下标为 Scenario
type Table [NumScenarios]Config

var tableKeys = map[Scenario]string{
	ScenarioXfade:  "fc_xfade",
	ScenarioManual: "fc_manual",
	ScenarioAlbum:  "fc_album",
	ScenarioStart:  "fc_start",
	ScenarioStop:   "fc_stop",
	ScenarioEOP:    "fc_eop",
	ScenarioSeek:   "fc_seek",
	ScenarioPause:  "fc_pause",
}

// Key 返回场景在持久化配置中的键名，timing 场景不持久化
func Key(s Scenario) (string, bool) {
	k, ok := tableKeys[s]
	return k, ok
}

// DefaultTable 返回出厂默认参数
func DefaultTable() Table {
	xfadeMask := maskOf(TypeReopen, TypeNone, TypePause, TypeSimpleXF, TypeAdvancedXF)
	return Table{
		ScenarioXfade: {
			Scenario: ScenarioXfade, Type: TypeAdvancedXF,
			PauseLenMs: 2000, SimpleLenMs: 6000,
			OutEnable: true, OutLenMs: 4000, OutVolume: 0,
			OffsetType: OffsetCustom, OffsetTypeWanted: OffsetCustom, OffsetCustomMs: -6000,
			InLocked: true, InEnable: false, InLenMs: 4000, InVolume: 33,
			TypeMask: xfadeMask,
		},
		ScenarioManual: {
			Scenario: ScenarioManual, Type: TypeSimpleXF,
			PauseLenMs: 2000, SimpleLenMs: 1000,
			OutEnable: true, OutLenMs: 500, OutVolume: 0,
			OffsetType: OffsetCustom, OffsetTypeWanted: OffsetCustom, OffsetCustomMs: -500,
			InLocked: true, InEnable: false, InLenMs: 500, InVolume: 50,
			FlushPauseLenMs: 500, FlushInLenMs: 500,
			Flush:    true,
			TypeMask: xfadeMask | maskOf(TypeFlush),
		},
		ScenarioAlbum: {
			Scenario: ScenarioAlbum, Type: TypeNone,
			InLenMs:  1000,
			TypeMask: maskOf(TypeNone),
		},
		ScenarioStart: {
			Scenario: ScenarioStart, Type: TypeFadeIn,
			InLenMs:  100,
			Flush:    true,
			TypeMask: maskOf(TypeNone, TypeFadeIn),
		},
		ScenarioStop: {
			Scenario: ScenarioStop, Type: TypeFadeOut,
			OutLenMs: 100, OffsetCustomMs: 500,
			Flush:    true,
			TypeMask: maskOf(TypeNone, TypeFadeOut),
		},
		ScenarioEOP: {
			Scenario: ScenarioEOP, Type: TypeFadeOut,
			OutLenMs: 100, OffsetCustomMs: 500,
			TypeMask: maskOf(TypeNone, TypeFadeOut),
		},
		ScenarioSeek: {
			Scenario: ScenarioSeek, Type: TypeSimpleXF,
			SimpleLenMs: 50, InLenMs: 1000,
			Flush:    true,
			TypeMask: maskOf(TypeFlush, TypeNone, TypeSimpleXF),
		},
		ScenarioPause: {
			Scenario: ScenarioPause, Type: TypePauseAdv,
			OutEnable: true, OutLenMs: 100, OffsetCustomMs: 100,
			InEnable: true, InLenMs: 100,
			TypeMask: maskOf(TypePauseNone, TypePauseAdv),
		},
		ScenarioTiming: {
			Scenario: ScenarioTiming, Type: TypeNone,
			OutEnable:  true,
			OffsetType: OffsetCustom, OffsetTypeWanted: OffsetCustom,
			InEnable: true,
		},
	}
}

// String 编码为 18 个逗号分隔整数
func (c *Config) String() string {
	vals := []int{
		int(c.Type), c.PauseLenMs, c.SimpleLenMs,
		boolInt(c.OutEnable), c.OutLenMs, c.OutVolume,
		int(c.OffsetType), int(c.OffsetTypeWanted), c.OffsetCustomMs,
		boolInt(c.InLocked), boolInt(c.InEnable), c.InLenMs, c.InVolume,
		boolInt(c.FlushPauseEnable), c.FlushPauseLenMs,
		boolInt(c.FlushInEnable), c.FlushInLenMs, c.FlushInVolume,
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// ParseInto 解析 String 的输出并写入 c。
// 场景、Flush 标记和掩码保持不变；字段不足 18 个时返回错误且不修改 c。
func ParseInto(s string, c *Config) error {
	parts := strings.Split(s, ",")
	if len(parts) < 18 {
		return fmt.Errorf("fade config %q: want 18 fields, got %d", s, len(parts))
	}
	v := make([]int, 18)
	for i := range v {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return fmt.Errorf("fade config %q: field %d: %w", s, i, err)
		}
		v[i] = n
	}
	c.Type = Type(v[0])
	c.PauseLenMs = v[1]
	c.SimpleLenMs = v[2]
	c.OutEnable = v[3] != 0
	c.OutLenMs = v[4]
	c.OutVolume = v[5]
	c.OffsetType = OffsetType(v[6])
	c.OffsetTypeWanted = OffsetType(v[7])
	c.OffsetCustomMs = v[8]
	c.InLocked = v[9] != 0
	c.InEnable = v[10] != 0
	c.InLenMs = v[11]
	c.InVolume = v[12]
	c.FlushPauseEnable = v[13] != 0
	c.FlushPauseLenMs = v[14]
	c.FlushInEnable = v[15] != 0
	c.FlushInLenMs = v[16]
	c.FlushInVolume = v[17]
	return nil
}

// MarshalJSON 以 fc_xxx 键输出各场景的编码串
func (t Table) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(tableKeys))
	for s, key := range tableKeys {
		out[key] = t[s].String()
	}
	return json.Marshal(out)
}

// UnmarshalJSON 只覆盖出现的键，未知键报错
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	byKey := make(map[string]Scenario, len(tableKeys))
	for s, key := range tableKeys {
		byKey[key] = s
	}
	for key, val := range raw {
		s, ok := byKey[key]
		if !ok {
			return fmt.Errorf("unknown fade config key %q", key)
		}
		if err := ParseInto(val, &t[s]); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// Validate 检查每个场景的方式是否在其掩码内
func (t *Table) Validate() error {
	for i := range t {
		c := &t[i]
		if c.Scenario != Scenario(i) {
			return fmt.Errorf("fade config %d: scenario mismatch %s", i, c.Scenario)
		}
		if c.TypeMask != 0 && !c.Allows(c.Type) {
			return fmt.Errorf("fade config %s: type %s not allowed", c.Scenario, c.Type)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
