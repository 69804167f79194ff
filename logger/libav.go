package logger

import (
	"github.com/asticode/go-astiav"
)

// LevelToAstiav returns the libav log level that lets through the same
// messages as the given go-belt level.
func LevelToAstiav(level Level) astiav.LogLevel {
	switch level {
	case LevelUndefined:
		return astiav.LogLevelQuiet
	case LevelPanic:
		return astiav.LogLevelPanic
	case LevelFatal:
		return astiav.LogLevelFatal
	case LevelError:
		return astiav.LogLevelError
	case LevelWarning:
		return astiav.LogLevelWarning
	case LevelInfo:
		return astiav.LogLevelInfo
	case LevelDebug:
		return astiav.LogLevelVerbose
	case LevelTrace:
		return astiav.LogLevelDebug
	default:
		return astiav.LogLevelWarning
	}
}

// LevelFromAstiav is the reverse of LevelToAstiav. libav's "debug" is mapped
// to trace: it is far too chatty for our debug level. Levels above debug
// (libav's own trace) are trace too.
func LevelFromAstiav(level astiav.LogLevel) Level {
	switch level {
	case astiav.LogLevelQuiet:
		return LevelUndefined
	case astiav.LogLevelPanic:
		return LevelPanic
	case astiav.LogLevelFatal:
		return LevelFatal
	case astiav.LogLevelError:
		return LevelError
	case astiav.LogLevelWarning:
		return LevelWarning
	case astiav.LogLevelInfo:
		return LevelInfo
	case astiav.LogLevelVerbose:
		return LevelDebug
	case astiav.LogLevelDebug:
		return LevelTrace
	default:
		if level > astiav.LogLevelDebug {
			return LevelTrace
		}
		return LevelWarning
	}
}
