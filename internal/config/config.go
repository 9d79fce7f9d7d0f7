package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/liuscraft/crossfade/internal/fade"
)

const DefaultPath = "config/crossfade.json"

// 设备类型
const (
	DeviceNull      = "null"
	DeviceWAV       = "wav"
	DeviceSpeaker   = "portaudio"
	DeviceWebSocket = "websocket"
)

type GlobalConfig struct {
	Logging LoggingConfig `json:"logging"`
	Output  OutputConfig  `json:"output"`
	Effect  EffectConfig  `json:"effect"`
	Mixer   MixerConfig   `json:"mixer"`
	Gap     GapConfig     `json:"gap"`
	Fade    fade.Table    `json:"fade"`

	MixSizeMs   int  `json:"mix_size_ms"`
	MixSizeAuto bool `json:"mix_size_auto"`
	SyncSizeMs  int  `json:"sync_size_ms"`
	PreloadMs   int  `json:"preload_size_ms"`

	SongchangeTimeoutMs int `json:"songchange_timeout_ms"`
	// InputTimeoutMs 关闭后等待新输入的时间，超时且宿主未在播放则开始停止
	InputTimeoutMs int `json:"input_timeout_ms"`

	AlbumDetection    bool `json:"album_detection"`
	NoXfadeIfSameFile bool `json:"no_xfade_if_same_file"`
	HTTPWorkaround    bool `json:"http_workaround"`

	OpMaxUsedEnable bool `json:"op_max_used_enable"`
	OpMaxUsedMs     int  `json:"op_max_used_ms"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type OutputConfig struct {
	Device     string       `json:"device"`
	Rate       int          `json:"rate"`
	Quality    int          `json:"quality"`
	KeepOpened bool         `json:"keep_opened"`
	WAVPath    string       `json:"wav_path"`
	URL        string       `json:"url"`
	Plugin     PluginConfig `json:"plugin"`
}

// PluginConfig 下游设备兼容选项
type PluginConfig struct {
	Throttle       bool `json:"throttle_enable"`
	MaxWriteEnable bool `json:"max_write_enable"`
	MaxWriteLen    int  `json:"max_write_len"`
	ForceReopen    bool `json:"force_reopen"`
}

type EffectConfig struct {
	Enable bool   `json:"enable"`
	Name   string `json:"name"`
}

type MixerConfig struct {
	Enable   bool `json:"enable"`
	Reverse  bool `json:"reverse"`
	Software bool `json:"software"`
	VolLeft  int  `json:"vol_left"`
	VolRight int  `json:"vol_right"`
}

// GapConfig 首尾静音检测参数，电平为 16 位采样幅度
type GapConfig struct {
	LeadEnable  bool `json:"lead_enable"`
	LeadLenMs   int  `json:"lead_len_ms"`
	LeadLevel   int  `json:"lead_level"`
	TrailEnable bool `json:"trail_enable"`
	TrailLenMs  int  `json:"trail_len_ms"`
	TrailLevel  int  `json:"trail_level"`
	TrailLocked bool `json:"trail_locked"`
	Crossing    bool `json:"crossing"`
}

func DefaultConfig() *GlobalConfig {
	return &GlobalConfig{
		Logging: LoggingConfig{},
		Output: OutputConfig{
			Device:  DeviceSpeaker,
			Rate:    44100,
			Quality: 2,
			WAVPath: "crossfade.wav",
			Plugin: PluginConfig{
				MaxWriteLen: 2304,
			},
		},
		Mixer: MixerConfig{
			Enable:   true,
			VolLeft:  75,
			VolRight: 75,
		},
		Gap: GapConfig{
			LeadEnable:  true,
			LeadLenMs:   500,
			LeadLevel:   512,
			TrailEnable: true,
			TrailLenMs:  500,
			TrailLevel:  512,
			TrailLocked: true,
			Crossing:    true,
		},
		Fade:                fade.DefaultTable(),
		MixSizeMs:           10000,
		MixSizeAuto:         true,
		SyncSizeMs:          250,
		SongchangeTimeoutMs: 500,
		InputTimeoutMs:      100,
		AlbumDetection:      true,
		OpMaxUsedMs:         250,
	}
}

func Load(path string) (*GlobalConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func (c *GlobalConfig) ApplyEnv() {
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		c.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		c.Logging.Format = format
	}
	if rate := strings.TrimSpace(os.Getenv("XF_OUTPUT_RATE")); rate != "" {
		if n, err := strconv.Atoi(rate); err == nil {
			c.Output.Rate = n
		}
	}
	if dev := strings.TrimSpace(os.Getenv("XF_DEVICE")); dev != "" {
		c.Output.Device = strings.ToLower(dev)
	}
}

func (c *GlobalConfig) Validate() error {
	if c.Output.Rate <= 0 || c.Output.Rate > 65535 {
		return fmt.Errorf("output.rate out of range: %d", c.Output.Rate)
	}
	switch c.Output.Device {
	case DeviceNull, DeviceWAV, DeviceSpeaker, DeviceWebSocket:
	default:
		return fmt.Errorf("invalid output.device: %s", c.Output.Device)
	}
	if c.Output.Device == DeviceWebSocket && strings.TrimSpace(c.Output.URL) == "" {
		return errors.New("output.url is required for websocket device")
	}
	if c.Output.Plugin.MaxWriteEnable && c.Output.Plugin.MaxWriteLen < 4 {
		return errors.New("output.plugin.max_write_len must be at least 4")
	}
	if c.MixSizeMs < 0 || c.SyncSizeMs < 0 || c.PreloadMs < 0 {
		return errors.New("buffer sizes must be non-negative")
	}
	if c.SongchangeTimeoutMs < 0 || c.InputTimeoutMs < 0 {
		return errors.New("timeouts must be non-negative")
	}
	if c.Gap.LeadLenMs < 0 || c.Gap.TrailLenMs < 0 {
		return errors.New("gap lengths must be non-negative")
	}
	if err := c.Fade.Validate(); err != nil {
		return err
	}
	return nil
}

// GapTrailEnable 尾部静音检测开关，锁定时跟随头部设置
func (c *GlobalConfig) GapTrailEnable() bool {
	if c.Gap.TrailLocked {
		return c.Gap.LeadEnable
	}
	return c.Gap.TrailEnable
}

func (c *GlobalConfig) GapTrailLenMs() int {
	if !c.GapTrailEnable() {
		return 0
	}
	if c.Gap.TrailLocked {
		return c.Gap.LeadLenMs
	}
	return c.Gap.TrailLenMs
}

func (c *GlobalConfig) GapTrailLevel() int {
	if c.Gap.TrailLocked {
		return c.Gap.LeadLevel
	}
	return c.Gap.TrailLevel
}

// MixSize 混音区大小 (ms)。自动模式下取所有场景所需的最大跨度，
// 再加上尾部静音长度和换曲超时。
func (c *GlobalConfig) MixSize() int {
	if !c.MixSizeAuto {
		return c.MixSizeMs
	}
	n := 0
	for i := range c.Fade {
		if span := c.Fade[i].Span(); span > n {
			n = span
		}
	}
	return n + c.GapTrailLenMs() + c.SongchangeTimeoutMs
}

// FadeConfig 返回场景对应的配置指针
func (c *GlobalConfig) FadeConfig(s fade.Scenario) *fade.Config {
	return &c.Fade[s]
}
