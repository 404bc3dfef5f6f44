// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import (
	"fmt"
	"io"
	"os"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print only the exit summary
	LogLast LogLevel = 0
	// LogEval print the iterate table every `level` accepted iterations for any (0 < level < 99)
	LogEval LogLevel = 1
	// LogTrace print details of every trial step except n-vectors
	LogTrace LogLevel = 99
	// LogVerbose print details of every trial step including x and fvec (level > 99)
	LogVerbose LogLevel = 100
)

// Logger handles logging output for the solvers.
// Note the writers must be thread-safe.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
	Out   io.Writer // Writer for output data.
}

// normalize fills the default writers, a nil logger produces no output.
func (l *Logger) normalize() Logger {
	if l == nil {
		return Logger{Level: LogNoop, Msg: io.Discard, Out: io.Discard}
	}
	c := *l
	if c.Msg == nil {
		c.Msg = os.Stdout
	}
	if c.Out == nil {
		c.Out = os.Stderr
	}
	return c
}

func (l *Logger) enable(level LogLevel) bool {
	return l.Level >= level
}

// every reports whether the iterate table is due at iteration iter.
func (l *Logger) every(iter int) bool {
	if l.Level < LogEval {
		return false
	}
	if l.Level >= LogTrace {
		return true
	}
	return iter%int(l.Level) == 0
}

func (l *Logger) log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

func (l *Logger) out(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Out, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Out, format)
	}
}

func (l *Logger) vector(name string, v []float64) {
	l.log("\n %s =", name)
	for i, e := range v {
		l.log(" %.2e", e)
		if (i+1)%6 == 0 && i+1 < len(v) {
			l.log("\n     ")
		}
	}
	l.log("\n")
}
