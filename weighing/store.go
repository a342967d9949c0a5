package weighing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"pesaje-scale-link/types"
)

// Store is the persistence collaborator that keeps confirmed weighings
// against a goods receipt.
type Store interface {
	// NextSequence returns the sequence number the next weighing of the
	// receipt will get.
	NextSequence(ctx context.Context, receiptID string) (int, error)
	Save(ctx context.Context, rec types.WeighingRecord) error
}

type MemoryStore struct {
	mu      sync.Mutex
	records []types.WeighingRecord
	seq     map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seq: map[string]int{}}
}

func (s *MemoryStore) NextSequence(_ context.Context, receiptID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq[receiptID] + 1, nil
}

func (s *MemoryStore) Save(_ context.Context, rec types.WeighingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(rec); err != nil {
		return err
	}
	s.seq[rec.ReceiptID] = rec.SequenceNumber
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) check(rec types.WeighingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(rec)
}

func (s *MemoryStore) checkLocked(rec types.WeighingRecord) error {
	if rec.SequenceNumber <= s.seq[rec.ReceiptID] {
		return fmt.Errorf("%w: receipt %s sequence %d", ErrDuplicateSequence, rec.ReceiptID, rec.SequenceNumber)
	}
	return nil
}

func (s *MemoryStore) Records() []types.WeighingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.WeighingRecord, len(s.records))
	copy(out, s.records)
	return out
}

// FileStore appends one JSON object per line. Sequence numbers are rebuilt
// from the file when it is opened.
type FileStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
	mem  *MemoryStore
}

func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, mem: NewMemoryStore()}

	if err := s.load(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open weighing store: %w", err)
	}
	s.f = f
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open weighing store: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec types.WeighingRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("weighing store %s line %d: %w", s.path, line, err)
		}
		if err := s.mem.Save(context.Background(), rec); err != nil {
			return fmt.Errorf("weighing store %s line %d: %w", s.path, line, err)
		}
	}
	return sc.Err()
}

func (s *FileStore) NextSequence(ctx context.Context, receiptID string) (int, error) {
	return s.mem.NextSequence(ctx, receiptID)
}

func (s *FileStore) Save(ctx context.Context, rec types.WeighingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.f == nil {
		return fmt.Errorf("write weighing store: %w", os.ErrClosed)
	}
	if err := s.mem.check(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	// the record counts only once it is on disk
	if err := s.append(append(data, '\n')); err != nil {
		return err
	}
	return s.mem.Save(ctx, rec)
}

// append writes one line and syncs it. On failure the file is cut back to
// its previous length so a reload does not see a record the caller was told
// failed.
func (s *FileStore) append(line []byte) error {
	var size int64 = -1
	if fi, err := s.f.Stat(); err == nil {
		size = fi.Size()
	}
	_, err := s.f.Write(line)
	if err == nil {
		err = s.f.Sync()
	}
	if err == nil {
		return nil
	}
	if size >= 0 {
		s.f.Truncate(size)
	}
	return fmt.Errorf("write weighing store: %w", err)
}

func (s *FileStore) Records() []types.WeighingRecord {
	return s.mem.Records()
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
