package adapters

import (
	"os"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"pkg-exporter/internal/ports"
)

// FileErrorLog is the durable cross-run violation log. Appends are
// serialized so concurrent scans never interleave their findings, and
// prior runs' content is never truncated.
type FileErrorLog struct {
	path string
	mu   sync.Mutex
}

func NewFileErrorLog(path string) *FileErrorLog {
	return &FileErrorLog{path: path}
}

func (l *FileErrorLog) Append(lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to open export error log").
			WithCause(err)
	}
	defer file.Close()
	if _, err := file.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to append to export error log").
			WithCause(err)
	}
	return nil
}

var _ ports.ErrorLogPort = (*FileErrorLog)(nil)
