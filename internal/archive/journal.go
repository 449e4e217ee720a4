// Package archive keeps an append-only JSONL journal of committed records,
// organized by UTC date and rotated by size.
package archive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Subhashis360/API-Inspector/internal/types"
)

const (
	KindRequest    = "request"
	KindConnection = "connection"
)

// Entry is one journal line.
type Entry struct {
	Kind   string          `json:"kind"`
	At     time.Time       `json:"at"`
	Record json.RawMessage `json:"record"`
}

// Journal writes committed records asynchronously. It implements
// store.CommitHook.
type Journal struct {
	baseDir   string
	maxSizeMB int
	now       func() time.Time

	writeCh   chan Entry
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu          sync.Mutex
	currentDate string
	loggers     map[string]*lumberjack.Logger
}

// New starts a journal under baseDir. Writes beyond bufferSize queued lines
// are dropped with a warning.
func New(baseDir string, bufferSize, maxSizeMB int) *Journal {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	j := &Journal{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		now:       time.Now,
		writeCh:   make(chan Entry, bufferSize),
		done:      make(chan struct{}),
		loggers:   make(map[string]*lumberjack.Logger),
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j
}

// RequestsCommitted journals a committed request batch.
func (j *Journal) RequestsCommitted(reqs []types.Request) {
	for i := range reqs {
		j.queue(KindRequest, reqs[i])
	}
}

// ConnectionsCommitted journals a committed connection batch.
func (j *Journal) ConnectionsCommitted(conns []types.Connection) {
	for i := range conns {
		j.queue(KindConnection, conns[i])
	}
}

func (j *Journal) queue(kind string, record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal journal record", "kind", kind, "error", err)
		return
	}
	e := Entry{Kind: kind, At: j.now().UTC(), Record: data}
	select {
	case <-j.done:
		return
	default:
	}
	select {
	case j.writeCh <- e:
	case <-j.done:
	default:
		slog.Warn("Journal buffer full, dropping record", "kind", kind)
	}
}

// Close flushes queued lines and closes the files.
func (j *Journal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		close(j.done)
		j.wg.Wait()

		j.mu.Lock()
		defer j.mu.Unlock()
		for name, l := range j.loggers {
			if cerr := l.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close journal %s: %w", name, cerr)
			}
		}
		j.loggers = map[string]*lumberjack.Logger{}
	})
	return err
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for {
		select {
		case e := <-j.writeCh:
			j.write(e)
		case <-j.done:
			// Drain what was queued before Close.
			for {
				select {
				case e := <-j.writeCh:
					j.write(e)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(e Entry) {
	line, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to marshal journal entry", "kind", e.Kind, "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := e.At.Format("2006-01-02")
	if date != j.currentDate {
		j.rotateForDate(date)
	}
	l, ok := j.loggers[e.Kind]
	if !ok {
		l = j.open(e.Kind)
		if l == nil {
			return
		}
	}
	if _, err := l.Write(append(line, '\n')); err != nil {
		slog.Error("Failed to write journal entry", "kind", e.Kind, "error", err)
	}
}

func (j *Journal) rotateForDate(date string) {
	for _, l := range j.loggers {
		l.Close()
	}
	j.loggers = make(map[string]*lumberjack.Logger)
	j.currentDate = date
}

func (j *Journal) open(kind string) *lumberjack.Logger {
	dir := filepath.Join(j.baseDir, j.currentDate)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("Failed to create journal directory", "dir", dir, "error", err)
		return nil
	}
	filename := filepath.Join(dir, kind+"s.jsonl")
	l := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    j.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		LocalTime:  false,
	}
	j.loggers[kind] = l
	slog.Info("Opened journal file", "file", filename)
	return l
}

// Path returns the journal file for kind on date.
func (j *Journal) Path(kind string, date time.Time) string {
	return filepath.Join(j.baseDir, date.UTC().Format("2006-01-02"), kind+"s.jsonl")
}
