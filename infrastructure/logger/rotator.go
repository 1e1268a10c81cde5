package logger

import (
	"io"
	"os"

	"github.com/jrick/logrotate/rotator"
)

// logWriter fans log lines out to both stdout and the write end of a
// rotator, mirroring daglabs-btcd/logger/logger.go's logWriter exactly.
type logWriter struct {
	rotator *rotator.Rotator
}

func (w *logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if w.rotator != nil {
		w.rotator.Write(p)
	}
	return len(p), nil
}

// NewRotatingBackend creates a Backend that writes to stdout and to a
// rotating log file under logDir, matching the teacher's 10 MiB /
// 3-kept-rolls rotation policy.
func NewRotatingBackend(logDir, logFilename string) (*Backend, error) {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, err
	}
	r, err := rotator.New(logDir+string(os.PathSeparator)+logFilename, 10*1024, false, 3)
	if err != nil {
		return nil, err
	}
	return NewBackend(&logWriter{rotator: r}), nil
}

var _ io.Writer = (*logWriter)(nil)
