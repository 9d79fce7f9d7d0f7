package logging

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 日志配置
type Config struct {
	Level  string
	Format string
}

var (
	baseLogger *zap.Logger
	sugar      *zap.SugaredLogger

	// 每条日志附带的播放上下文
	deviceName atomic.Value
	scenario   atomic.Value
	outputSeq  int64
	trackSeq   int64
)

func init() {
	baseLogger = zap.NewNop()
	sugar = baseLogger.Sugar()
}

func Init(cfg Config) error {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = "info"
	}

	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format == "" {
		format = "console"
	}

	var zapCfg zap.Config
	switch format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	atomLevel := zap.NewAtomicLevel()
	if err := atomLevel.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level: %s", cfg.Level)
	}
	zapCfg.Level = atomLevel

	logger, err := zapCfg.Build(
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	SetLogger(logger)
	return nil
}

// SetLogger 替换底层 logger，nil 表示关闭日志
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseLogger = logger
	sugar = logger.Sugar()
}

func Sync() {
	if baseLogger != nil {
		_ = baseLogger.Sync()
	}
}

// SetDevice 记录输出设备名，空字符串被忽略
func SetDevice(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	deviceName.Store(name)
}

// SetScenario 记录当前生效的过渡场景
func SetScenario(name string) {
	scenario.Store(name)
}

// OutputOpened 设备每打开一次调用一次，返回打开序号
func OutputOpened() int64 {
	return atomic.AddInt64(&outputSeq, 1)
}

// NextTrack 开始一首新曲目，返回曲目序号
func NextTrack() int64 {
	return atomic.AddInt64(&trackSeq, 1)
}

func Debugf(format string, args ...interface{}) {
	withFields().Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	withFields().Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	withFields().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	withFields().Errorf(format, args...)
}

func withFields() *zap.SugaredLogger {
	dev, _ := deviceName.Load().(string)
	if dev == "" {
		dev = "none"
	}
	sc, _ := scenario.Load().(string)
	fields := []interface{}{
		"device", dev,
		"output", atomic.LoadInt64(&outputSeq),
		"track", atomic.LoadInt64(&trackSeq),
	}
	if sc != "" {
		fields = append(fields, "scenario", sc)
	}
	return sugar.With(fields...)
}
