package fleetws

// Logger is the leveled, field-aware logger every component writes to.
type Logger interface {
	WithField(key string, value any) Logger
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

// NopLogger discards everything.
func NopLogger() Logger { return nopLogger{} }

func (n nopLogger) WithField(string, any) Logger { return n }
func (nopLogger) Debug(...any)                   {}
func (nopLogger) Debugf(string, ...any)          {}
func (nopLogger) Info(...any)                    {}
func (nopLogger) Infof(string, ...any)           {}
func (nopLogger) Warn(...any)                    {}
func (nopLogger) Warnf(string, ...any)           {}
func (nopLogger) Error(...any)                   {}
func (nopLogger) Errorf(string, ...any)          {}
