package log

import (
	"context"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Error(v ...interface{})
	Warn(v ...interface{})
	Info(v ...interface{})
	Debug(v ...interface{})
	Errorf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
}

var defaultLogger atomic.Value

func init() {
	defaultLogger.Store(loggerHolder{logger: NewSugarLogger(NewOptions())})
}

// atomic.Value 要求存入的具体类型一致
type loggerHolder struct {
	logger Logger
}

// Options 选项配置
type Options struct {
	LogLevel   string // 日志级别
	FileName   string // 文件名称，为空时只输出到控制台
	MaxAge     int    // 日志保留时间，以天为单位
	MaxSize    int    // 日志保留大小，以 M 为单位
	MaxBackups int    // 保留文件个数
	Compress   bool   // 是否压缩
	Console    bool   // 是否同时输出到标准输出
}

// Option 选项方法
type Option func(*Options)

// NewOptions 初始化
func NewOptions(opts ...Option) Options {
	options := Options{
		LogLevel:   "info",
		FileName:   "",
		MaxAge:     10,
		MaxSize:    100,
		MaxBackups: 3,
		Compress:   true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithLogLevel 日志级别
func WithLogLevel(level string) Option {
	return func(o *Options) {
		o.LogLevel = level
	}
}

// WithFileName 日志文件
func WithFileName(filename string) Option {
	return func(o *Options) {
		o.FileName = filename
	}
}

// WithConsole 输出到标准输出
func WithConsole(console bool) Option {
	return func(o *Options) {
		o.Console = console
	}
}

// Levels zapcore level
var Levels = map[string]zapcore.Level{
	"":      zapcore.DebugLevel,
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"fatal": zapcore.FatalLevel,
}

type zapLoggerWrapper struct {
	*zap.SugaredLogger
	options Options
}

func NewSugarLogger(options Options) Logger {
	w := &zapLoggerWrapper{options: options}
	core := zapcore.NewCore(w.getEncoder(), w.getLogWriter(), Levels[options.LogLevel])
	w.SugaredLogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return w
}

func (w *zapLoggerWrapper) getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func (w *zapLoggerWrapper) getLogWriter() zapcore.WriteSyncer {
	var syncers []zapcore.WriteSyncer
	if w.options.FileName != "" {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   w.options.FileName,
			MaxAge:     w.options.MaxAge,
			MaxSize:    w.options.MaxSize,
			MaxBackups: w.options.MaxBackups,
			Compress:   w.options.Compress,
		}))
	}
	if w.options.Console || len(syncers) == 0 {
		syncers = append(syncers, zapcore.Lock(os.Stdout))
	}
	return zapcore.NewMultiWriteSyncer(syncers...)
}

// GetDefaultLogger 获取默认日志实现
func GetDefaultLogger() Logger {
	return defaultLogger.Load().(loggerHolder).logger
}

// SetDefaultLogger 替换默认日志实现
func SetDefaultLogger(logger Logger) {
	if logger == nil {
		return
	}
	defaultLogger.Store(loggerHolder{logger: logger})
}

// Debugf 打印 Debug 日志
func Debugf(format string, args ...interface{}) {
	GetDefaultLogger().Debugf(format, args...)
}

// Infof 打印 Info 日志
func Infof(format string, args ...interface{}) {
	GetDefaultLogger().Infof(format, args...)
}

// Warnf 打印 Warn 日志
func Warnf(format string, args ...interface{}) {
	GetDefaultLogger().Warnf(format, args...)
}

// Errorf 打印 Error 日志
func Errorf(format string, args ...interface{}) {
	GetDefaultLogger().Errorf(format, args...)
}

// DebugContextf 打印 Debug 日志
func DebugContextf(ctx context.Context, format string, args ...interface{}) {
	GetDefaultLogger().Debugf(format, args...)
}

// InfoContextf 打印 Info 日志
func InfoContextf(ctx context.Context, format string, args ...interface{}) {
	GetDefaultLogger().Infof(format, args...)
}

// InfoContextw 打印结构化 Info 日志
func InfoContextw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	GetDefaultLogger().Infow(msg, keysAndValues...)
}

// WarnContextf 打印 Warn 日志
func WarnContextf(ctx context.Context, format string, args ...interface{}) {
	GetDefaultLogger().Warnf(format, args...)
}

// WarnContextw 打印结构化 Warn 日志
func WarnContextw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	GetDefaultLogger().Warnw(msg, keysAndValues...)
}

func ErrorContextf(ctx context.Context, format string, args ...interface{}) {
	GetDefaultLogger().Errorf(format, args...)
}
