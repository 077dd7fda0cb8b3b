package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

const (
	recordExt       = ".json"
	guardFileName   = ".guard"
	lockDirMode     = 0o755
	guardPoll       = 25 * time.Millisecond
	defaultGuardTTL = 30 * time.Second
)

// FileStore keeps one JSON file per issue under a directory.
type FileStore struct {
	dir          string
	guardTimeout time.Duration
}

// NewFileStore returns a store rooted at dir. guardTimeout bounds how long
// Exclusive and Shared wait for the guard; zero uses 30s.
func NewFileStore(dir string, guardTimeout time.Duration) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("lock directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve lock directory %s: %w", dir, err)
	}
	if guardTimeout <= 0 {
		guardTimeout = defaultGuardTTL
	}
	return &FileStore{dir: abs, guardTimeout: guardTimeout}, nil
}

// Dir returns the lock directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(issueID string) string {
	return filepath.Join(s.dir, issueID+recordExt)
}

// Read loads the record for issueID.
func (s *FileStore) Read(ctx context.Context, issueID string) (*Record, error) {
	if err := validateIssueID(issueID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.path(issueID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock %s: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode lock %s: %w", path, err)
	}
	if rec.Issue == "" {
		rec.Issue = issueID
	}
	return &rec, nil
}

// Write atomically replaces the record file.
func (s *FileStore) Write(ctx context.Context, record Record) error {
	if err := validateIssueID(record.Issue); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, lockDirMode); err != nil {
		return fmt.Errorf("create lock directory %s: %w", s.dir, err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock %s: %w", record.Issue, err)
	}
	data = append(data, '\n')
	path := s.path(record.Issue)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write lock %s: %w", path, err)
	}
	return nil
}

// Remove deletes the record file; a missing file is not an error.
func (s *FileStore) Remove(ctx context.Context, issueID string) error {
	if err := validateIssueID(issueID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.path(issueID)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock %s: %w", path, err)
	}
	return nil
}

// List returns every record sorted by issue id.
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock directory %s: %w", s.dir, err)
	}
	var records []Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			continue
		}
		rec, err := s.Read(ctx, strings.TrimSuffix(name, recordExt))
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Issue < records[j].Issue })
	return records, nil
}

// Exclusive takes the write side of the guard file.
func (s *FileStore) Exclusive(ctx context.Context) (UnlockFunc, error) {
	return s.guard(ctx, true)
}

// Shared takes the read side of the guard file.
func (s *FileStore) Shared(ctx context.Context) (UnlockFunc, error) {
	return s.guard(ctx, false)
}

func (s *FileStore) guard(ctx context.Context, exclusive bool) (UnlockFunc, error) {
	if err := os.MkdirAll(s.dir, lockDirMode); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", s.dir, err)
	}
	path := filepath.Join(s.dir, guardFileName)
	fl := flock.New(path)
	waitCtx, cancel := context.WithTimeout(ctx, s.guardTimeout)
	defer cancel()

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = fl.TryLockContext(waitCtx, guardPoll)
	} else {
		ok, err = fl.TryRLockContext(waitCtx, guardPoll)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock guard %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock guard %s is busy", path)
	}
	return fl.Unlock, nil
}
