package commands

import (
	"github.com/wonny/swingdag/pkg/config"
	"github.com/wonny/swingdag/pkg/logger"
)

// cliLogger is a console logger for commands that need no backends.
func cliLogger() *logger.Logger {
	level := "info"
	if verbose {
		level = "debug"
	}
	return logger.New(&config.Config{LogLevel: level, LogFormat: "console"})
}
