package event

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

type EventLogData struct {
	Time    int64  `json:"time"`
	Service string `json:"service"`
	Action  string `json:"action"`
	Data    string `json:"data"`
}

const (
	InLogFile  = "in.log"
	OutLogFile = "out.log"
)

// EventLog appends broker events as JSON lines.
type EventLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func OpenEventLog(dir, name string) (*EventLog, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating event log dir: %w", err)
	}

	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &EventLog{path: path, file: file}, nil
}

func (l *EventLog) Append(data EventLogData) error {
	line, err := json.Marshal(data)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.file.Write(append(line, '\n'))
	return err
}

// Each calls fn for every entry in the log, oldest first.
func (l *EventLog) Each(fn func(EventLogData) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("opening event log for replay: %w", err)
	}
	defer f.Close()

	return scanEntries(f, fn)
}

func scanEntries(r io.Reader, fn func(EventLogData) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		data := EventLogData{}
		if err := json.Unmarshal(scanner.Bytes(), &data); err != nil {
			return fmt.Errorf("decoding event log line: %w", err)
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (l *EventLog) Close() error {
	return l.file.Close()
}
