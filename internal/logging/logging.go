// Package logging builds the logrus logger used across the scheduler.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config controls logger level and output format
type Config struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// New creates a logger writing to w (stderr when nil)
func New(config Config, w io.Writer) (*logrus.Logger, error) {
	level := logrus.InfoLevel
	if config.Level != "" {
		var err error
		if level, err = logrus.ParseLevel(config.Level); err != nil {
			return nil, err
		}
	}
	if w == nil {
		w = os.Stderr
	}
	ret := logrus.New()
	ret.SetOutput(w)
	ret.SetLevel(level)
	switch strings.ToLower(config.Format) {
	case "", FormatText:
		ret.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		ret.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format: %v", config.Format)
	}
	ret.AddHook(componentHook("sched"))
	return ret, nil
}

// componentHook tags every entry with the emitting component
type componentHook string

func (h componentHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h componentHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["component"]; !ok {
		entry.Data["component"] = string(h)
	}
	return nil
}

// Discard returns a logger that drops everything, handy in tests
func Discard() *logrus.Logger {
	ret := logrus.New()
	ret.SetOutput(io.Discard)
	return ret
}
