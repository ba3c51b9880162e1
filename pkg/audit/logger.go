package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/newtron-network/ogctl/pkg/util"
)

// maxLine bounds one JSON line; a load with many directives can exceed
// bufio.Scanner's default.
const maxLine = 1 << 20

// Logger is an audit backend.
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// Rotation bounds the live log file. Backups are named path.1 (newest)
// through path.N.
type Rotation struct {
	MaxSize    int64 // rotate once the live file reaches this many bytes; 0 never rotates
	MaxBackups int   // backups kept; 0 keeps all
}

// FileLogger appends events to a JSON-lines file.
type FileLogger struct {
	path     string
	rotation Rotation

	mu   sync.RWMutex
	file *os.File
}

// NewFileLogger opens path for appending, creating its directory.
func NewFileLogger(path string, rotation Rotation) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	l := &FileLogger{path: path, rotation: rotation}
	if err := l.open(); err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// Log appends one event, rotating first when the live file is full.
func (l *FileLogger) Log(event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.full() {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotating audit log: %w", err)
		}
	}
	_, err = l.file.Write(append(line, '\n'))
	return err
}

func (l *FileLogger) full() bool {
	if l.rotation.MaxSize <= 0 {
		return false
	}
	info, err := l.file.Stat()
	return err == nil && info.Size() >= l.rotation.MaxSize
}

// rotate shifts path.i to path.i+1, dropping what falls past MaxBackups,
// and moves the live file to path.1.
func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}

	n := l.backups()
	if keep := l.rotation.MaxBackups; keep > 0 && n >= keep {
		for i := keep; i <= n; i++ {
			if err := os.Remove(l.backup(i)); err != nil {
				return err
			}
		}
		n = keep - 1
	}
	for i := n; i >= 1; i-- {
		if err := os.Rename(l.backup(i), l.backup(i+1)); err != nil {
			return err
		}
	}
	if err := os.Rename(l.path, l.backup(1)); err != nil {
		return err
	}
	return l.open()
}

func (l *FileLogger) backup(i int) string {
	return l.path + "." + strconv.Itoa(i)
}

// backups counts the contiguous run of backups starting at path.1.
func (l *FileLogger) backups() int {
	n := 0
	for {
		if _, err := os.Stat(l.backup(n + 1)); err != nil {
			return n
		}
		n++
	}
}

// Query returns the events matching filter, oldest first, across the
// backups and the live file. With a Limit only the newest matches are kept.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := []*Event{}
	for i := l.backups(); i >= 0; i-- {
		path := l.path
		if i > 0 {
			path = l.backup(i)
		}
		var err error
		if events, err = scan(path, filter, events); err != nil {
			return nil, err
		}
	}

	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}

func scan(path string, filter Filter, events []*Event) ([]*Event, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return events, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for line := 1; sc.Scan(); line++ {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			util.Warnf("audit: skipping malformed entry %s:%d: %v", filepath.Base(path), line, err)
			continue
		}
		if filter.Match(&e) {
			events = append(events, &e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return events, nil
}

// Close closes the live file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger
)

// SetDefaultLogger sets the logger used by Log and Query. nil disables
// auditing.
func SetDefaultLogger(logger Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// Log writes event to the default logger, if one is set.
func Log(event *Event) error {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l == nil {
		return nil
	}
	return l.Log(event)
}

// Query searches the default logger. Without one it finds nothing.
func Query(filter Filter) ([]*Event, error) {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l == nil {
		return []*Event{}, nil
	}
	return l.Query(filter)
}
