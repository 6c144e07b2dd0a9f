// Package logging wires up logrus the way the teacher's cmd/main.go did,
// adding lumberjack rotation for the optional file sink (seen in the
// sun977-NeoScan pack repo's logging setup).
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// New builds a logrus.Logger at the given level, writing to stderr and,
// when filePath is non-empty, to a rotating log file.
func New(level, filePath string) *logrus.Logger {
	logger := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	var out io.Writer = os.Stderr
	if filePath != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	logger.SetOutput(out)

	return logger
}
