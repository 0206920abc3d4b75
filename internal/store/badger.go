package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/ppiankov/groundcheck/internal/model"
)

// BadgerConfig holds configuration for the embedded key-value store
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

// BadgerStore keeps citation spans in BadgerDB.
//
// Keys:
//
//	pass/<document>\x00<version>\x00<pass_id>            -> PassSummary
//	span/<document>\x00<version>\x00<pass_id>\x00<seq>   -> Record
type BadgerStore struct {
	db     *badger.DB
	locks  *versionLocks
	logger *zap.Logger
}

type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// OpenBadger opens a BadgerDB store
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &BadgerStore{
		db:     db,
		locks:  newVersionLocks(),
		logger: logger,
	}, nil
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func versionPrefix(kind, documentID, versionID string) []byte {
	return []byte(kind + "/" + documentID + "\x00" + versionID + "\x00")
}

func passKey(documentID, versionID, passID string) []byte {
	return append(versionPrefix("pass", documentID, versionID), passID...)
}

func spanKey(documentID, versionID, passID string, seq int) []byte {
	key := versionPrefix("span", documentID, versionID)
	return fmt.Appendf(key, "%s\x00%08d", passID, seq)
}

// SavePass writes the pass and its citations in a single transaction
func (s *BadgerStore) SavePass(ctx context.Context, pass *model.VerificationPass) error {
	if err := validatePass(pass); err != nil {
		return fmt.Errorf("validate pass: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.lock(pass.DocumentID, pass.VersionID)
	defer unlock()

	summary := PassSummary{
		PassID:     pass.PassID,
		DocumentID: pass.DocumentID,
		VersionID:  pass.VersionID,
		Artifact:   pass.Artifact,
		CreatedAt:  pass.CreatedAt.UTC(),
		Grounding:  pass.Grounding,
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := passKey(pass.DocumentID, pass.VersionID, pass.PassID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("pass %s already stored", pass.PassID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("encode pass: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set pass: %w", err)
		}

		for _, c := range pass.Citations {
			c.DocumentID = pass.DocumentID
			c.VersionID = pass.VersionID
			record := Record{
				PassID:           pass.PassID,
				Artifact:         pass.Artifact,
				CreatedAt:        summary.CreatedAt,
				VerifiedCitation: c,
			}
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("encode citation %d: %w", c.SequenceIndex, err)
			}
			if err := txn.Set(spanKey(pass.DocumentID, pass.VersionID, pass.PassID, c.SequenceIndex), data); err != nil {
				return fmt.Errorf("set citation %d: %w", c.SequenceIndex, err)
			}
		}
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("badger update: %w", err)
	}

	s.logger.Debug("saved verification pass",
		zap.String("pass_id", pass.PassID),
		zap.String("document_id", pass.DocumentID),
		zap.String("version_id", pass.VersionID),
		zap.Int("citations", len(pass.Citations)))
	return nil
}

// ListByVersion returns every stored citation of a document version
func (s *BadgerStore) ListByVersion(ctx context.Context, documentID, versionID string) ([]Record, error) {
	var records []Record
	err := s.scan(ctx, versionPrefix("span", documentID, versionID), func(val []byte) error {
		var r Record
		if err := json.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("decode citation: %w", err)
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

// ListPasses returns the grounding summaries stored for a document version
func (s *BadgerStore) ListPasses(ctx context.Context, documentID, versionID string) ([]PassSummary, error) {
	var passes []PassSummary
	err := s.scan(ctx, versionPrefix("pass", documentID, versionID), func(val []byte) error {
		var p PassSummary
		if err := json.Unmarshal(val, &p); err != nil {
			return fmt.Errorf("decode pass: %w", err)
		}
		passes = append(passes, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortPasses(passes)
	return passes, nil
}

func (s *BadgerStore) scan(ctx context.Context, prefix []byte, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
