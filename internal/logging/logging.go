// =============================================================================
// 文件: internal/logging/logging.go
// 描述: 日志 - 级别常量与按组件命名的 zap 日志器
// =============================================================================
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelError = iota
	LevelInfo
	LevelDebug
)

// ParseLevel 将配置中的级别名转为数值，未知名称返回 LevelInfo
func ParseLevel(name string) int {
	switch name {
	case "debug":
		return LevelDebug
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// New 创建输出到标准输出的组件日志器
func New(component string, level int) *zap.SugaredLogger {
	return newLogger(component, level, zapcore.Lock(os.Stdout))
}

func newLogger(component string, level int, ws zapcore.WriteSyncer) *zap.SugaredLogger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "component",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, zapLevel(level))
	return zap.New(core).Named(component).Sugar()
}

func zapLevel(level int) zapcore.Level {
	switch {
	case level <= LevelError:
		return zapcore.ErrorLevel
	case level == LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
