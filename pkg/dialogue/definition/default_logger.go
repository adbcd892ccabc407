package definition

import (
	"fmt"
	"io"
	"log"

	"github.com/fatih/color"
)

const calldepth = 2

var (
	infoColor  = color.New(color.FgGreen).SprintFunc()
	warnColor  = color.New(color.FgYellow).SprintFunc()
	errorColor = color.New(color.FgRed).SprintFunc()
	debugColor = color.New(color.FgCyan).SprintFunc()
)

// NewDefaultLogger builds the logger used when a Dialogue is not given its
// own implementation: a thin leveled wrapper over the standard library's
// log.Logger with a colorized "[LEVEL]: message" prefix convention.
func NewDefaultLogger(w io.Writer) *DefaultLogger {
	return &DefaultLogger{
		Logger: log.New(w, "dialogue", log.LstdFlags),
		debug:  false,
	}
}

func level(colorFn func(a ...interface{}) string, prefix, message string) string {
	return fmt.Sprintf("[%s]: %s", colorFn(prefix), message)
}

// DefaultLogger is the default types.Logger implementation.
type DefaultLogger struct {
	*log.Logger
	debug bool
}

func (l *DefaultLogger) Info(v ...interface{}) {
	_ = l.Output(calldepth, level(infoColor, "INFO", fmt.Sprint(v...)))
}

func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	_ = l.Output(calldepth, level(infoColor, "INFO", fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Warn(v ...interface{}) {
	_ = l.Output(calldepth, level(warnColor, "WARN", fmt.Sprint(v...)))
}

func (l *DefaultLogger) Warnf(format string, v ...interface{}) {
	_ = l.Output(calldepth, level(warnColor, "WARN", fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Error(v ...interface{}) {
	_ = l.Output(calldepth, level(errorColor, "ERROR", fmt.Sprint(v...)))
}

func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	_ = l.Output(calldepth, level(errorColor, "ERROR", fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Debug(v ...interface{}) {
	if l.debug {
		_ = l.Output(calldepth, level(debugColor, "DEBUG", fmt.Sprint(v...)))
	}
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	if l.debug {
		_ = l.Output(calldepth, level(debugColor, "DEBUG", fmt.Sprintf(format, v...)))
	}
}

func (l *DefaultLogger) ToggleDebug(value bool) bool {
	l.debug = value
	return l.debug
}
