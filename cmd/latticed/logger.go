// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// nodeLogger implements logger.ILogger with a fixed line format.
type nodeLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *nodeLogger) SetLevel(level logger.LogLevel) { l.level = level }

func (l *nodeLogger) Debugf(format string, args ...any) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *nodeLogger) Infof(format string, args ...any) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *nodeLogger) Warningf(format string, args ...any) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *nodeLogger) Errorf(format string, args ...any) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *nodeLogger) Panicf(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}

func (l *nodeLogger) log(level, format string, args ...any) {
	l.logger.Printf("%-5s | %-10s | %s", level, l.name, fmt.Sprintf(format, args...))
}

// logOutput is where node loggers write.
var logOutput io.Writer = os.Stderr

func newLogger(name string) logger.ILogger {
	return &nodeLogger{
		name:   name,
		level:  logger.INFO,
		logger: log.New(logOutput, "", log.Ldate|log.Ltime),
	}
}

// loggerNames are the named loggers used by the library packages.
var loggerNames = []string{"exchange", "channel", "latticed"}

// initLoggers installs the node logger factory and sets the level of each
// named logger.
func initLoggers(level string) error {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return err
	}
	logger.SetLoggerFactory(newLogger)
	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}

func parseLogLevel(s string) (logger.LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (want debug, info, warn, or error)", s)
	}
}
