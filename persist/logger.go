// Package persist holds the ambient persistence concerns shared by every
// component that touches disk: structured logging and the scheduled backup
// ticker. It mirrors the shape of rivine's persist package (a FileLogger
// constructed with the blockchain/build info and a target path, logging a
// STARTUP line on open and a SHUTDOWN line on Close) but backs the logger
// with logrus instead of a bare stdlib *log.Logger, per the ambient-stack
// mandate to prefer the ecosystem library the dependency graph already
// carries.
package persist

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// BuildInfo identifies the running daemon in every log line and in the
// STARTUP/SHUTDOWN banner, mirroring rivine's types.BlockchainInfo argument
// to NewFileLogger.
type BuildInfo struct {
	Name    string
	Version string
}

// Logger wraps a logrus.Logger bound to both a file and a stderr sink, plus the STARTUP/SHUTDOWN banner lines rivine's own FileLogger
// always writes.
type Logger struct {
	*logrus.Logger
	file *os.File
	info BuildInfo
}

// NewFileLogger opens (creating if needed) the log file at path, wires a
// text or JSON logrus formatter depending on format, and writes the
// STARTUP banner.
func NewFileLogger(info BuildInfo, path string, format string, verbose bool) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("persist: open log file: %w", err)
	}

	base := logrus.New()
	base.SetOutput(io.MultiWriter(f, os.Stderr))
	if format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if verbose {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}

	l := &Logger{Logger: base, file: f, info: info}
	l.WithFields(logrus.Fields{"name": info.Name, "version": info.Version}).Info("STARTUP: log opened")
	return l, nil
}

// Close writes the SHUTDOWN banner and closes the underlying file.
func (l *Logger) Close() error {
	l.WithFields(logrus.Fields{"name": l.info.Name}).Info("SHUTDOWN: log closing")
	return l.file.Close()
}
