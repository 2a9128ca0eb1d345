// Package logging provides the process-wide structured logger used by every
// other package in this module.
package logging

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CustomLogger embeds zap.Logger and adds a sub-DEBUG Trace level, used for the
// highest-volume diagnostics (per-chunk, per-token progress).
type CustomLogger struct {
	zap.Logger
}

// LogTrace sits below zap's built-in Debug level so verbose per-row/per-token
// logging can be silenced independently of ordinary debug logging.
const LogTrace zapcore.Level = -2

var defaultLogger, _ = zap.NewDevelopment()

// Log is the package-wide logger. Replace it by calling Init.
var Log = CustomLogger{*defaultLogger}

// Trace logs a message at trace level with optional structured fields.
func (l *CustomLogger) Trace(msg string, fields ...zap.Field) {
	l.Log(LogTrace, msg, fields...)
}

func init() {
	setupShutdownHook()
}

func setupShutdownHook() {
	defer func(l *CustomLogger) {
		if err := l.Sync(); err != nil {
			log.Println("logger sync returned an error (expected on some terminals): ", err)
		}
	}(&Log)
}

// Init configures the package logger. jsonLogs selects a production JSON encoder,
// dev selects zap's development console encoder, verbose raises the level to DEBUG,
// and trace raises it further to LogTrace.
func Init(jsonLogs bool, dev bool, verbose bool, trace bool) {
	switch {
	case jsonLogs:
		defaultLogger = buildJSONLogger(trace, verbose)
	case dev:
		defaultLogger = buildDevLogger(trace, verbose)
	default:
		defaultLogger = buildConsoleLogger(trace, verbose)
	}
	Log = CustomLogger{*defaultLogger}
	setupShutdownHook()
}

func buildJSONLogger(trace, verbose bool) *zap.Logger {
	if trace {
		cfg := zap.Config{
			Level:       zap.NewAtomicLevelAt(LogTrace),
			Development: false,
			Encoding:    "json",
			EncoderConfig: zapcore.EncoderConfig{
				TimeKey:        "ts",
				LevelKey:       "level",
				NameKey:        "logger",
				CallerKey:      "caller",
				FunctionKey:    zapcore.OmitKey,
				MessageKey:     "msg",
				StacktraceKey:  "stacktrace",
				LineEnding:     zapcore.DefaultLineEnding,
				EncodeLevel:    traceLevelEncoder,
				EncodeTime:     zapcore.EpochTimeEncoder,
				EncodeDuration: zapcore.SecondsDurationEncoder,
				EncodeCaller:   zapcore.ShortCallerEncoder,
			},
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		}
		l, _ := cfg.Build()
		return l
	}
	if verbose {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		l, _ := cfg.Build()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

func buildDevLogger(trace, verbose bool) *zap.Logger {
	if trace {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(LogTrace)
		cfg.EncoderConfig.EncodeLevel = traceLevelEncoder
		l, _ := cfg.Build()
		return l
	}
	if verbose {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewDevelopment(zap.IncreaseLevel(zap.InfoLevel))
	return l
}

func buildConsoleLogger(trace, verbose bool) *zap.Logger {
	// no timestamps, no JSON - a short human-friendly line for CLI usage
	log.SetFlags(0)

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	switch {
	case trace:
		level = zap.NewAtomicLevelAt(LogTrace)
	case verbose:
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "",
		CallerKey:      "caller",
		EncodeLevel:    iconLevelEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	return zap.New(core, zap.WithCaller(false), zap.AddStacktrace(zapcore.ErrorLevel))
}

// iconLevelEncoder serializes a Level to a short icon, keeping the console quiet
// at info level and below.
func iconLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.ErrorLevel, zapcore.FatalLevel:
		enc.AppendString("❌")
	case zapcore.WarnLevel:
		enc.AppendString("⚠")
	case zapcore.InfoLevel:
		enc.AppendString("i")
	case LogTrace:
		enc.AppendString("TRACE")
	}
}

// traceLevelEncoder adds TRACE level serialization for encoders that otherwise
// only know about zapcore's built-in levels.
func traceLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == LogTrace {
		enc.AppendString("TRACE")
	} else {
		enc.AppendString(l.CapitalString())
	}
}
