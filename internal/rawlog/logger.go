// Package rawlog is the structured logging facade used across rawcore.
// It generalizes the teacher driver's servicelog package: an attribute
// builder on top of zap, with an optional kardianos/service sink so the
// capture core can run as an installed OS service on the companion host.
package rawlog

import (
	"net/url"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Attrib is a structured log attribute. It is a thin alias over zap.Field
// so callers never import zap directly.
type Attrib = zap.Field

func String(name, value string) Attrib { return zap.String(name, value) }
func Int(name string, value int) Attrib { return zap.Int(name, value) }
func Int64(name string, value int64) Attrib { return zap.Int64(name, value) }
func Float64(name string, value float64) Attrib { return zap.Float64(name, value) }
func Bool(name string, value bool) Attrib { return zap.Bool(name, value) }
func Any(name string, value interface{}) Attrib { return zap.Any(name, value) }
func Error(err error) Attrib { return zap.Error(err) }
func Duration(name string, value time.Duration) Attrib { return zap.Duration(name, value) }

// Logger is the interface every rawcore package logs through.
type Logger interface {
	With(attrs ...Attrib) Logger
	Debug(msg string, attrs ...Attrib)
	Info(msg string, attrs ...Attrib)
	Warn(msg string, attrs ...Attrib)
	Error(msg string, attrs ...Attrib)
	Fatal(msg string, attrs ...Attrib)
}

type lumberjackSink struct {
	*lumberjack.Logger
}

func (lumberjackSink) Sync() error { return nil }

type zapLogger struct {
	z *zap.Logger
}

// New builds a Logger. When logFile is non-empty, output is routed
// through a registered lumberjack sink for rotation, matching the
// teacher's logger setup.
func New(debug bool, logFile string) (Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if logFile != "" {
		sinkName := "lumberjack"
		_ = zap.RegisterSink(sinkName, func(u *url.URL) (zap.Sink, error) {
			return lumberjackSink{
				Logger: &lumberjack.Logger{
					Filename:   u.Path,
					MaxSize:    100,
					MaxBackups: 5,
					MaxAge:     28,
					Compress:   true,
				},
			}, nil
		})
		cfg.OutputPaths = []string{sinkName + "://" + logFile}
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

func (l *zapLogger) With(attrs ...Attrib) Logger {
	return &zapLogger{z: l.z.With(attrs...)}
}

func (l *zapLogger) Debug(msg string, attrs ...Attrib) { l.z.Debug(msg, attrs...) }
func (l *zapLogger) Info(msg string, attrs ...Attrib)  { l.z.Info(msg, attrs...) }
func (l *zapLogger) Warn(msg string, attrs ...Attrib)  { l.z.Warn(msg, attrs...) }
func (l *zapLogger) Error(msg string, attrs ...Attrib) { l.z.Error(msg, attrs...) }
func (l *zapLogger) Fatal(msg string, attrs ...Attrib) { l.z.Fatal(msg, attrs...) }

// ServiceSink adapts a Logger onto kardianos/service's Logger interface,
// used when rawcore is installed and run as an OS service.
type ServiceSink struct {
	Logger Logger
}

func (s ServiceSink) Error(v ...interface{}) error {
	s.Logger.Error(join(v))
	return nil
}
func (s ServiceSink) Warning(v ...interface{}) error {
	s.Logger.Warn(join(v))
	return nil
}
func (s ServiceSink) Info(v ...interface{}) error {
	s.Logger.Info(join(v))
	return nil
}
func (s ServiceSink) Errorf(format string, a ...interface{}) error {
	s.Logger.Error(sprintf(format, a...))
	return nil
}
func (s ServiceSink) Warningf(format string, a ...interface{}) error {
	s.Logger.Warn(sprintf(format, a...))
	return nil
}
func (s ServiceSink) Infof(format string, a ...interface{}) error {
	s.Logger.Info(sprintf(format, a...))
	return nil
}

var _ service.Logger = ServiceSink{}
