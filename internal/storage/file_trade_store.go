package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/PxPatel/p2p-swap/internal/types"
)

// JournalOp identifies the kind of write recorded in the trade journal
type JournalOp string

const (
	JournalInsert JournalOp = "insert"
	JournalStatus JournalOp = "status"
)

// JournalEntry is one line of the trade journal
type JournalEntry struct {
	Op         JournalOp    `json:"op"`
	Expected   types.Status `json:"expected,omitempty"`
	Trade      *types.Trade `json:"trade"`
	RecordedAt time.Time    `json:"recordedAt"`
}

// FileTradeStore implements TradeStore as an append-only JSON-lines journal.
// Read operations return nothing; put it behind an InMemoryTradeStore in a
// CompositeTradeStore and use ReplayJournal to rebuild memory on start.
type FileTradeStore struct {
	file    *os.File
	encoder *json.Encoder
	mutex   sync.Mutex
}

// NewFileTradeStore creates a new file-based trade journal
func NewFileTradeStore(filePath string) (*FileTradeStore, error) {
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade journal: %w", err)
	}

	return &FileTradeStore{
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

func (s *FileTradeStore) append(entry JournalEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	entry.RecordedAt = time.Now().UTC()
	return s.encoder.Encode(entry)
}

func (s *FileTradeStore) Insert(_ context.Context, trade *types.Trade) error {
	return s.append(JournalEntry{Op: JournalInsert, Trade: trade})
}

func (s *FileTradeStore) Get(_ context.Context, _ string) (*types.Trade, error) {
	// Journal is write-only
	return nil, ErrNotFound
}

func (s *FileTradeStore) GetByWallet(_ context.Context, _ string) ([]*types.Trade, error) {
	return []*types.Trade{}, nil
}

func (s *FileTradeStore) UpdateStatus(_ context.Context, trade *types.Trade, expected types.Status) error {
	return s.append(JournalEntry{Op: JournalStatus, Expected: expected, Trade: trade})
}

// WriteOnly marks the journal as unable to serve reads
func (s *FileTradeStore) WriteOnly() bool { return true }

func (s *FileTradeStore) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// ReadJournal decodes every entry of the journal at filePath.
// A missing file yields no entries.
func ReadJournal(filePath string) ([]JournalEntry, error) {
	file, err := os.Open(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trade journal: %w", err)
	}
	defer file.Close()

	var entries []JournalEntry
	decoder := json.NewDecoder(bufio.NewReader(file))
	for {
		var entry JournalEntry
		if err := decoder.Decode(&entry); err == io.EOF {
			break
		} else if err != nil {
			return entries, fmt.Errorf("corrupt trade journal entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ReplayJournal re-applies the journal at filePath onto store and returns
// the number of entries applied. Entries the store rejects as duplicates or
// stale status changes are skipped, so replaying twice is harmless.
func ReplayJournal(ctx context.Context, filePath string, store TradeStore) (int, error) {
	entries, err := ReadJournal(filePath)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, entry := range entries {
		if entry.Trade == nil {
			continue
		}
		switch entry.Op {
		case JournalInsert:
			err = store.Insert(ctx, entry.Trade)
			if errors.Is(err, ErrDuplicateID) {
				continue
			}
		case JournalStatus:
			err = store.UpdateStatus(ctx, entry.Trade, entry.Expected)
			if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrNotFound) {
				continue
			}
		default:
			continue
		}
		if err != nil {
			return applied, fmt.Errorf("replay trade %s: %w", entry.Trade.ID, err)
		}
		applied++
	}
	return applied, nil
}
