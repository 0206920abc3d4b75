package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/groundcheck/internal/model"
)

// Store persists verification passes. SavePass is all-or-nothing.
type Store interface {
	// SavePass writes the pass summary and every citation in one transaction
	SavePass(ctx context.Context, pass *model.VerificationPass) error

	// ListByVersion returns every stored citation of a document version,
	// ordered by pass creation time and sequence index
	ListByVersion(ctx context.Context, documentID, versionID string) ([]Record, error)

	// ListPasses returns the grounding summaries stored for a document version
	ListPasses(ctx context.Context, documentID, versionID string) ([]PassSummary, error)

	// Close releases the underlying database
	Close() error
}

// Record is one stored citation with the pass it belongs to
type Record struct {
	PassID    string    `json:"pass_id"`
	Artifact  string    `json:"artifact"`
	CreatedAt time.Time `json:"created_at"`
	model.VerifiedCitation
}

// PassSummary is the stored grounding of one pass
type PassSummary struct {
	PassID     string                 `json:"pass_id"`
	DocumentID string                 `json:"document_id"`
	VersionID  string                 `json:"version_id"`
	Artifact   string                 `json:"artifact"`
	CreatedAt  time.Time              `json:"created_at"`
	Grounding  model.GroundingSummary `json:"grounding"`
}

// Open creates the store selected by cfg.Driver.
// The "none" driver returns a nil Store and disables persistence.
func Open(cfg model.StorageConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "":
		s, err := OpenSQLite(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "badger", "badger-memory":
		s, err := OpenBadger(BadgerConfig{
			Path:       cfg.Path,
			InMemory:   strings.EqualFold(cfg.Driver, "badger-memory"),
			SyncWrites: true,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s (supported: sqlite, badger, badger-memory, none)", cfg.Driver)
	}
}

func validatePass(pass *model.VerificationPass) error {
	if pass == nil {
		return fmt.Errorf("nil pass")
	}
	if pass.PassID == "" || pass.DocumentID == "" || pass.VersionID == "" {
		return fmt.Errorf("pass, document and version ids are required")
	}
	for i, c := range pass.Citations {
		if c.SequenceIndex != i {
			return fmt.Errorf("citation %d has sequence index %d", i, c.SequenceIndex)
		}
		if !c.MatchMethod.Valid() {
			return fmt.Errorf("citation %d has invalid match method %q", i, c.MatchMethod)
		}
	}
	return nil
}

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.PassID != b.PassID {
			return a.PassID < b.PassID
		}
		return a.SequenceIndex < b.SequenceIndex
	})
}

func sortPasses(passes []PassSummary) {
	sort.SliceStable(passes, func(i, j int) bool {
		if !passes[i].CreatedAt.Equal(passes[j].CreatedAt) {
			return passes[i].CreatedAt.Before(passes[j].CreatedAt)
		}
		return passes[i].PassID < passes[j].PassID
	})
}

// versionLocks serializes writes per document version
type versionLocks struct {
	mu    sync.Mutex
	locks map[string]*versionLock
}

type versionLock struct {
	mu   sync.Mutex
	refs int
}

func newVersionLocks() *versionLocks {
	return &versionLocks{locks: make(map[string]*versionLock)}
}

// lock acquires the lock for a version and returns its release func
func (v *versionLocks) lock(documentID, versionID string) func() {
	key := documentID + "\x00" + versionID

	v.mu.Lock()
	l, ok := v.locks[key]
	if !ok {
		l = &versionLock{}
		v.locks[key] = l
	}
	l.refs++
	v.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		v.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(v.locks, key)
		}
		v.mu.Unlock()
	}
}
