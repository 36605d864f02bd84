// Package ledger owns the state that makes extraction resumable: the
// results recorded so far, the set of works already claimed, and the log of
// source documents that were fully processed.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"ao3extract/internal/logger"
	"ao3extract/internal/models"
)

// Ledger errors.
var (
	ErrLedgerLocked       = errors.New("ledger is locked by another run")
	ErrCorruptResults     = errors.New("results file is corrupt")
	ErrInconsistentLedger = errors.New("processed log lists documents but the results file is missing")
	ErrLedgerClosed       = errors.New("ledger is closed")
)

// Paths locates the files a ledger persists to.
type Paths struct {
	Results      string
	ProcessedLog string
	Report       string
}

// Stats summarizes the ledger contents.
type Stats struct {
	PriorResults int
	NewResults   int
	Processed    int
	Claimed      int
}

// Ledger is safe for concurrent use. One mutex guards every collection and
// the processed log handle; callers never hold it across network I/O.
type Ledger struct {
	lock      *flock.Flock
	logFile   *os.File
	logger    *logger.Logger
	seen      map[string]struct{}
	recorded  map[string]struct{}
	processed map[string]struct{}
	paths     Paths
	results   []models.ResultRecord
	prior     int
	mu        sync.Mutex
	reset     bool
	closed    bool
}

// Option configures Open.
type Option func(*Ledger)

// WithReset discards every persisted file before loading, so the ledger
// starts empty.
func WithReset(reset bool) Option {
	return func(l *Ledger) { l.reset = reset }
}

// WithLogger sets the ledger logger.
func WithLogger(log *logger.Logger) Option {
	return func(l *Ledger) { l.logger = log }
}

// Open locks and loads the ledger stored at paths. It fails with
// ErrLedgerLocked when another run holds the ledger.
func Open(paths Paths, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		paths:     paths,
		logger:    logger.Discard(),
		seen:      make(map[string]struct{}),
		recorded:  make(map[string]struct{}),
		processed: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	if err := ensureDir(paths.Results); err != nil {
		return nil, err
	}

	if err := ensureDir(paths.ProcessedLog); err != nil {
		return nil, err
	}

	lockPath := paths.Results + ".lock"
	l.lock = flock.New(lockPath)

	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLedgerLocked, lockPath)
	}

	if err := l.init(); err != nil {
		_ = l.lock.Unlock()
		return nil, err
	}

	return l, nil
}

func (l *Ledger) init() error {
	if l.reset {
		if err := l.discard(); err != nil {
			return err
		}
	} else if err := l.load(); err != nil {
		return err
	}

	logFile, err := os.OpenFile(l.paths.ProcessedLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open processed log: %w", err)
	}

	l.logFile = logFile

	l.logger.Info("ledger opened",
		"results", l.paths.Results,
		"prior_results", l.prior,
		"processed_documents", len(l.processed),
		"reset", l.reset)

	return nil
}

func (l *Ledger) discard() error {
	for _, path := range []string{l.paths.Results, l.paths.ProcessedLog, l.paths.Report} {
		if path == "" {
			continue
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reset %s: %w", path, err)
		}
	}

	return nil
}

func (l *Ledger) load() error {
	processed, err := readProcessedLog(l.paths.ProcessedLog)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(l.paths.Results)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		if len(processed) > 0 {
			return fmt.Errorf("%w: %s has %d entries, %s not found",
				ErrInconsistentLedger, l.paths.ProcessedLog, len(processed), l.paths.Results)
		}

		return nil
	case err != nil:
		return fmt.Errorf("read results: %w", err)
	}

	records, err := models.UnmarshalResults(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptResults, l.paths.Results, err)
	}

	for _, rec := range records {
		key := canonicalKey(rec.URL)
		l.seen[key] = struct{}{}
		l.recorded[key] = struct{}{}
	}

	for _, url := range processed {
		l.processed[url] = struct{}{}
	}

	l.results = records
	l.prior = len(records)

	return nil
}

func readProcessedLog(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("open processed log: %w", err)
	}
	defer f.Close()

	var urls []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			urls = append(urls, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read processed log: %w", err)
	}

	return urls, nil
}

// IsProcessed reports whether the source document at url was fully processed.
func (l *Ledger) IsProcessed(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.processed[strings.TrimSpace(url)]

	return ok
}

// Claim marks a work as taken and reports whether the caller is the first to
// claim it. Only the first claimant may fetch the work.
func (l *Ledger) Claim(workURL string) bool {
	key := canonicalKey(workURL)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[key]; ok {
		return false
	}

	l.seen[key] = struct{}{}

	return true
}

// Record appends rec unless a record for the same work already exists. It
// reports whether rec was appended.
func (l *Ledger) Record(rec models.ResultRecord) bool {
	key := canonicalKey(rec.URL)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.recorded[key]; ok {
		return false
	}

	l.seen[key] = struct{}{}
	l.recorded[key] = struct{}{}
	l.results = append(l.results, rec)

	return true
}

// MarkProcessed checkpoints the results file and then appends url to the
// processed log. A document is never logged before its records are on disk.
func (l *Ledger) MarkProcessed(url string) error {
	url = strings.TrimSpace(url)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLedgerClosed
	}

	if _, ok := l.processed[url]; ok {
		return nil
	}

	if err := l.saveLocked(); err != nil {
		return err
	}

	if _, err := l.logFile.WriteString(url + "\n"); err != nil {
		return fmt.Errorf("append processed log: %w", err)
	}

	if err := l.logFile.Sync(); err != nil {
		return fmt.Errorf("sync processed log: %w", err)
	}

	l.processed[url] = struct{}{}

	return nil
}

// Results returns a copy of every record in insertion order.
func (l *Ledger) Results() []models.ResultRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]models.ResultRecord(nil), l.results...)
}

// Stats returns counts describing the ledger.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		PriorResults: l.prior,
		NewResults:   len(l.results) - l.prior,
		Processed:    len(l.processed),
		Claimed:      len(l.seen),
	}
}

// Paths returns the files the ledger persists to.
func (l *Ledger) Paths() Paths {
	return l.paths
}

// Save writes the results file.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLedgerClosed
	}

	return l.saveLocked()
}

func (l *Ledger) saveLocked() error {
	data, err := models.MarshalResults(l.results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	return WriteFileAtomic(l.paths.Results, data)
}

// Close releases the processed log and the ledger lock.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	var errs []error

	if err := l.logFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close processed log: %w", err))
	}

	if err := l.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}

	return errors.Join(errs...)
}

// WriteFileAtomic replaces path with data via a synced temp file and rename,
// so readers see either the old or the new contents.
func WriteFileAtomic(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("sync %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	return nil
}

// canonicalKey is the dedup key for a work URL. URLs that are not work links
// key on their trimmed form.
func canonicalKey(workURL string) string {
	if canonical, err := models.CanonicalWorkURL(workURL); err == nil {
		return canonical
	}

	return strings.TrimSpace(workURL)
}
