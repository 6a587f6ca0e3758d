// Package logging builds the shared log writer. Components keep their own
// *log.Logger with a bracketed prefix; they all write through one
// rotating file, teed to stderr in verbose mode.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the log writer.
type Options struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Verbose    bool      // also write to Stderr
	Stderr     io.Writer // defaults to os.Stderr
}

// Output is the shared writer. Close flushes and closes the log file.
type Output struct {
	file *lumberjack.Logger
	w    io.Writer
}

// Open creates the log directory and returns the writer. An empty Path
// logs to stderr only when Verbose is set and discards otherwise.
func Open(opts Options) (*Output, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	out := &Output{}
	var writers []io.Writer
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, err
		}
		out.file = &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		writers = append(writers, out.file)
	}
	if opts.Verbose {
		writers = append(writers, stderr)
	}

	switch len(writers) {
	case 0:
		out.w = io.Discard
	case 1:
		out.w = writers[0]
	default:
		out.w = io.MultiWriter(writers...)
	}
	return out, nil
}

func (o *Output) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

// Logger returns a logger for a component, prefixed "[component] ".
func (o *Output) Logger(component string) *log.Logger {
	return log.New(o, "["+component+"] ", log.LstdFlags)
}

func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}
