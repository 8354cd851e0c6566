package outputlog

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Log appends the output of external tools to a line-oriented log file.
type Log struct {
	file   *os.File
	logger *logrus.Logger
}

func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create log directory %v", dir)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log file %v", path)
	}
	logger := logrus.New()
	logger.SetOutput(file)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
	})
	return &Log{file: file, logger: logger}, nil
}

func (l *Log) WriteLine(source, stream, line string) {
	entry := l.logger.WithFields(logrus.Fields{
		"operation": source,
		"stream":    stream,
	})
	if stream == "stderr" {
		entry.Warn(line)
		return
	}
	entry.Info(line)
}

func (l *Log) Close() error {
	return l.file.Close()
}
