package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// New builds the console logger used by the CLI. It writes to stderr so command
// output on stdout stays machine readable.
func New(debug, silent bool) *zap.Logger {
	return NewWithWriter(os.Stderr, level(debug, silent), term.IsTerminal(int(os.Stderr.Fd())))
}

// NewWithWriter builds a console logger writing to w at the given level
func NewWithWriter(w io.Writer, level zapcore.Level, color bool) *zap.Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	encoderConfig.CallerKey = ""
	if color {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
	return zap.New(core)
}

func level(debug, silent bool) zapcore.Level {
	switch {
	case silent:
		return zapcore.ErrorLevel
	case debug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
