package sshclient

import "github.com/sirupsen/logrus"

// Logger is the debug sink collaborator (spec §3's "debug sink",
// §6's Transport construction argument). *logrus.Entry/*logrus.Logger
// do not satisfy it directly (their WithField returns *logrus.Entry);
// NewLogger adapts a *logrus.Logger. Client uses whatever is supplied
// (or a discard logger) and threads it the same way the teacher threads
// its Fs as the "owner" argument to every fs.Debugf(f, ...) call.
type Logger interface {
	WithField(key string, value any) Logger
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type logrusLogger struct{ e *logrus.Entry }

// NewLogger adapts a *logrus.Logger into this package's Logger interface.
func NewLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.New()
		l.SetLevel(logrus.PanicLevel)
	}
	return logrusLogger{e: logrus.NewEntry(l)}
}

func discardLogger() Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return NewLogger(l)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (l logrusLogger) WithField(key string, value any) Logger {
	return logrusLogger{e: l.e.WithField(key, value)}
}
func (l logrusLogger) Debugf(format string, args ...any) { l.e.Debugf(format, args...) }
func (l logrusLogger) Warnf(format string, args ...any)  { l.e.Warnf(format, args...) }
func (l logrusLogger) Errorf(format string, args ...any) { l.e.Errorf(format, args...) }
