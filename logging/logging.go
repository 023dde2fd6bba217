// Package logging configures the structured logger shared by all modules.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var base = newLogger(os.Stdout)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return l
}

// Init applies level and format to the shared logger. Unknown levels fall
// back to info.
func Init(level, format string) *logrus.Logger {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
				logrus.FieldKeyMsg:  "message",
			},
		})
	}
	return base
}

// Logger returns the shared logger.
func Logger() *logrus.Logger {
	return base
}

// Module returns an entry tagged with the module name.
func Module(name string) *logrus.Entry {
	return base.WithField("module", name)
}

// SetOutput redirects the shared logger, mainly for tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}
