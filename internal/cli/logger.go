package cli

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Log formats accepted by --log-format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// NewLogger builds the run logger writing to w. verbose lowers the level
// to Debug; the default level is Warn so progress lines stay readable.
func NewLogger(w io.Writer, verbose bool, format string) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(w)

	switch format {
	case "", LogFormatText:
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	case LogFormatJSON:
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("%w %q (use %s or %s)", ErrInvalidLogFormat, format, LogFormatText, LogFormatJSON)
	}

	l.SetLevel(logrus.WarnLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return l, nil
}
