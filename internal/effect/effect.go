// Package effect 在混音前对解码输出做可插拔的处理。
package effect

import (
	"fmt"
	"sort"
	"sync"

	"github.com/liuscraft/crossfade/internal/format"
	"github.com/liuscraft/crossfade/internal/logging"
)

// Effect 对一段采样做变换，可以修改 f 来声明新的输出格式
type Effect interface {
	Name() string
	Flow(samples []byte, f *format.Format) []byte
}

// Stage 可选的效果处理阶段，未设置效果或未启用时直接透传
type Stage struct {
	mu      sync.Mutex
	effect  Effect
	enabled bool
	// 最近一次协商成功的输入输出格式，只在变化时记录日志
	lastIn  format.Format
	lastOut format.Format
}

func NewStage() *Stage {
	return &Stage{}
}

// Set 替换当前效果，nil 表示不使用效果
func (s *Stage) Set(e Effect, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effect = e
	s.enabled = enabled
	s.lastIn = format.Format{}
	s.lastOut = format.Format{}
}

func (s *Stage) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.effect != nil
}

// Flow 处理 samples，f 被更新为效果的输出格式。
// 效果返回非法格式时丢弃效果输出，原样返回输入。
func (s *Stage) Flow(samples []byte, f *format.Format) []byte {
	s.mu.Lock()
	e, enabled := s.effect, s.enabled
	s.mu.Unlock()
	if e == nil || !enabled || len(samples) == 0 {
		return samples
	}

	in := *f
	out := *f
	result := e.Flow(samples, &out)
	if out != in {
		negotiated, err := format.Negotiate(out.Kind, out.Rate, out.Channels)
		if err != nil {
			logging.Warnf("EffectStage: %s produced unusable format %s: %v", e.Name(), out, err)
			return samples
		}
		out = negotiated
	}

	s.mu.Lock()
	if in != s.lastIn || out != s.lastOut {
		logging.Infof("EffectStage: %s %s -> %s", e.Name(), in, out)
		s.lastIn, s.lastOut = in, out
	}
	s.mu.Unlock()

	*f = out
	return result
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Effect{}
)

// Register 注册一个效果构造函数
func Register(name string, ctor func() Effect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// Lookup 按名称创建效果
func Lookup(name string) (Effect, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown effect %q", name)
	}
	return ctor(), nil
}

// Names 已注册的效果名称
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
