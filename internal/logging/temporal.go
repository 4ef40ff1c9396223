package logging

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	sdklog "go.temporal.io/sdk/log"
)

// TemporalAdapter bridges a logrus entry to the Temporal SDK logger
// interface, so client, worker and workflow logs share one sink.
type TemporalAdapter struct {
	entry *log.Entry
}

var _ sdklog.Logger = (*TemporalAdapter)(nil)

// NewTemporalAdapter wraps the given logger for use as a Temporal SDK logger.
func NewTemporalAdapter(logger *log.Logger) *TemporalAdapter {
	return &TemporalAdapter{entry: log.NewEntry(logger)}
}

func (a *TemporalAdapter) Debug(msg string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Debug(msg)
}

func (a *TemporalAdapter) Info(msg string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Info(msg)
}

func (a *TemporalAdapter) Warn(msg string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Warn(msg)
}

func (a *TemporalAdapter) Error(msg string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Error(msg)
}

// fields converts alternating key/value pairs into logrus fields. A trailing
// key without a value is kept with a nil value rather than dropped.
func fields(keyvals []interface{}) log.Fields {
	f := make(log.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 < len(keyvals) {
			f[key] = keyvals[i+1]
		} else {
			f[key] = nil
		}
	}
	return f
}
