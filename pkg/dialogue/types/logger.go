package types

// Logger is the logging surface a Dialogue is configured with: leveled
// logging plus formatted variants and a runtime debug toggle, so a host
// application can swap in logrus, zap, or any other implementation behind
// the same small interface.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	// ToggleDebug enables or disables Debug/Debugf and returns the new state.
	ToggleDebug(value bool) bool
}
