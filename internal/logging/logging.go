// Package logging wires logrus into the process and adapts it to the
// interfaces expected by the durable-execution SDK.
package logging

import (
	log "github.com/sirupsen/logrus"

	"github.com/trellislabs/orderflow/internal/config"
)

// Configure applies the logging configuration to the standard logrus logger
// and returns it.
func Configure(cfg config.Logging) *log.Logger {
	logger := log.StandardLogger()

	if cfg.JSON {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
