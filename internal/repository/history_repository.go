package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/compozy/stackops/internal/domain"
)

const (
	// HistorySchemaVersion defines the current schema version for history files
	HistorySchemaVersion = "1.0.0"
	// HistoryFilePermissions defines the permissions for history files
	HistoryFilePermissions = 0o600
	// HistoryDirPermissions defines the permissions for the history directory
	HistoryDirPermissions = 0o700
	// DefaultHistoryDir is used when no directory is configured
	DefaultHistoryDir = ".stackops"

	recordPrefix = "op-"
	recordSuffix = ".json"
	latestFile   = "latest.txt"
)

// ErrRecordNotFound is returned when no history record exists for an id.
var ErrRecordNotFound = errors.New("operation record not found")

// ErrChecksumMismatch is returned when a history file fails validation.
var ErrChecksumMismatch = errors.New("record checksum mismatch: data may be corrupted")

// HistoryRepository persists finished operations.
type HistoryRepository interface {
	Save(ctx context.Context, record *domain.OperationRecord) error
	Load(ctx context.Context, id string) (*domain.OperationRecord, error)
	LoadLatest(ctx context.Context) (*domain.OperationRecord, error)
	// List returns up to limit records, newest first. A limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*domain.OperationRecord, error)
	// Prune keeps the newest keep records and deletes the rest.
	Prune(ctx context.Context, keep int) (int, error)
}

// RecordMetadata contains metadata about a history file.
type RecordMetadata struct {
	SchemaVersion string    `json:"schema_version"`
	Checksum      string    `json:"checksum"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RecordWrapper wraps a record with metadata.
type RecordWrapper struct {
	Metadata RecordMetadata          `json:"metadata"`
	Record   *domain.OperationRecord `json:"record"`
}

// JSONHistoryRepository implements HistoryRepository with one JSON file per
// operation.
type JSONHistoryRepository struct {
	fs          afero.Fs
	dir         string
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
	mu          sync.RWMutex
}

// NewJSONHistoryRepository creates a JSON history store under dir.
func NewJSONHistoryRepository(fs afero.Fs, dir string, lockTimeout time.Duration, logger *zap.Logger) *JSONHistoryRepository {
	if dir == "" {
		dir = DefaultHistoryDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONHistoryRepository{
		fs:          fs,
		dir:         filepath.Join(dir, "history"),
		lockTimeout: lockTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Save writes the record atomically and points latest.txt at it.
func (r *JSONHistoryRepository) Save(ctx context.Context, record *domain.OperationRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record must have an id")
	}
	if err := r.fs.MkdirAll(r.dir, HistoryDirPermissions); err != nil {
		return fmt.Errorf("failed to ensure history directory: %w", err)
	}
	unlock, err := r.lock(ctx, record.ID, false)
	if err != nil {
		return err
	}
	defer unlock()

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record for checksum: %w", err)
	}
	wrapper := RecordWrapper{
		Metadata: RecordMetadata{
			SchemaVersion: HistorySchemaVersion,
			Checksum:      checksum(payload),
			UpdatedAt:     r.now(),
		},
		Record: record,
	}
	data, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record wrapper: %w", err)
	}
	filename := r.recordFilename(record.ID)
	if err := r.writeAtomic(filename, data); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeAtomic(filepath.Join(r.dir, latestFile), []byte(filename))
}

// Load reads and validates a single record.
func (r *JSONHistoryRepository) Load(ctx context.Context, id string) (*domain.OperationRecord, error) {
	unlock, err := r.lock(ctx, id, true)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return r.read(r.recordFilename(id))
}

// LoadLatest returns the most recently saved record.
func (r *JSONHistoryRepository) LoadLatest(ctx context.Context) (*domain.OperationRecord, error) {
	r.mu.RLock()
	data, err := afero.ReadFile(r.fs, filepath.Join(r.dir, latestFile))
	r.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read latest link: %w", err)
	}
	id, ok := recordID(string(data))
	if !ok {
		return nil, fmt.Errorf("invalid latest link target: %s", data)
	}
	return r.Load(ctx, id)
}

// List returns records newest first. Corrupted files are skipped and logged.
func (r *JSONHistoryRepository) List(ctx context.Context, limit int) ([]*domain.OperationRecord, error) {
	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}
	var records []*domain.OperationRecord
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		if _, ok := recordID(entry.Name()); !ok {
			continue
		}
		record, err := r.read(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			r.logger.Warn("skipping unreadable history record", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	slices.SortStableFunc(records, func(a, b *domain.OperationRecord) int {
		if c := b.QueuedAt.Compare(a.QueuedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Prune deletes all but the newest keep records and returns how many were
// removed.
func (r *JSONHistoryRepository) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	records, err := r.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	if len(records) <= keep {
		return 0, nil
	}
	removed := 0
	for _, record := range records[keep:] {
		if err := r.delete(ctx, record.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (r *JSONHistoryRepository) delete(ctx context.Context, id string) error {
	unlock, err := r.lock(ctx, id, false)
	if err != nil {
		return err
	}
	defer unlock()
	if err := r.fs.Remove(r.recordFilename(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	return nil
}

func (r *JSONHistoryRepository) read(filename string) (*domain.OperationRecord, error) {
	data, err := afero.ReadFile(r.fs, filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read history record: %w", err)
	}
	var wrapper RecordWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record wrapper: %w", err)
	}
	if wrapper.Metadata.SchemaVersion != HistorySchemaVersion {
		return nil, fmt.Errorf("incompatible schema version: expected %s, got %s",
			HistorySchemaVersion, wrapper.Metadata.SchemaVersion)
	}
	if wrapper.Record == nil {
		return nil, fmt.Errorf("history file %s has no record", filepath.Base(filename))
	}
	payload, err := json.Marshal(wrapper.Record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record for checksum validation: %w", err)
	}
	if wrapper.Metadata.Checksum != checksum(payload) {
		return nil, ErrChecksumMismatch
	}
	return wrapper.Record, nil
}

// lock takes the per-record file lock. Filesystems without a real path
// (afero.MemMapFs) only get the in-process mutex.
func (r *JSONHistoryRepository) lock(ctx context.Context, id string, shared bool) (func(), error) {
	if _, ok := r.fs.(*afero.OsFs); !ok {
		return func() {}, nil
	}
	if err := r.fs.MkdirAll(r.dir, HistoryDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to ensure history directory: %w", err)
	}
	lock := flock.New(filepath.Join(r.dir, fmt.Sprintf(".%s%s.lock", recordPrefix, id)))
	if err := AcquireLock(ctx, lock, shared, r.lockTimeout); err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to unlock history record", zap.String("id", id), zap.Error(err))
		}
	}, nil
}

func (r *JSONHistoryRepository) writeAtomic(filename string, data []byte) error {
	temp := filename + ".tmp"
	if err := afero.WriteFile(r.fs, temp, data, HistoryFilePermissions); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := r.fs.Rename(temp, filename); err != nil {
		if removeErr := r.fs.Remove(temp); removeErr != nil {
			r.logger.Warn("failed to remove temp file", zap.String("file", temp), zap.Error(removeErr))
		}
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(filename), err)
	}
	return nil
}

func (r *JSONHistoryRepository) recordFilename(id string) string {
	return filepath.Join(r.dir, recordPrefix+id+recordSuffix)
}

func recordID(filename string) (string, bool) {
	base := filepath.Base(strings.TrimSpace(filename))
	if !strings.HasPrefix(base, recordPrefix) || !strings.HasSuffix(base, recordSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(base, recordPrefix), recordSuffix)
	return id, id != ""
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
