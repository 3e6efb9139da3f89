package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// utcFormatter stamps every entry in UTC regardless of the host timezone.
type utcFormatter struct {
	logrus.Formatter
}

func (f utcFormatter) Format(e *logrus.Entry) ([]byte, error) {
	e.Time = e.Time.UTC()
	return f.Formatter.Format(e)
}

// Setup configures the standard logrus logger. format is "text" or "json".
func Setup(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	var f logrus.Formatter
	switch format {
	case "", "text":
		f = &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000000 UTC"}
	case "json":
		f = &logrus.JSONFormatter{}
	default:
		return fmt.Errorf("log format %q: want text or json", format)
	}

	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(lvl)
	logrus.SetFormatter(utcFormatter{f})
	return nil
}

// For returns an entry tagged with the component and process identity.
func For(component, identity string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"component": component,
		"identity":  identity,
	})
}
