package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/groundcheck/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS grounding_pass (
	pass_id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	version_id TEXT NOT NULL,
	artifact TEXT NOT NULL,
	created_at TEXT NOT NULL,
	confidence REAL NOT NULL,
	confidence_reasons TEXT NOT NULL,
	verified_count INTEGER NOT NULL,
	citation_count INTEGER NOT NULL,
	exact_matches INTEGER NOT NULL,
	fuzzy_matches INTEGER NOT NULL,
	can_cite INTEGER NOT NULL,
	can_publish INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_grounding_pass_version ON grounding_pass(document_id, version_id);

CREATE TABLE IF NOT EXISTS citation_span (
	document_id TEXT NOT NULL,
	version_id TEXT NOT NULL,
	pass_id TEXT NOT NULL REFERENCES grounding_pass(pass_id),
	sequence_index INTEGER NOT NULL,
	artifact TEXT NOT NULL,
	quote_text TEXT NOT NULL,
	claim TEXT NOT NULL DEFAULT '',
	verified INTEGER NOT NULL,
	match_method TEXT NOT NULL CHECK (match_method IN ('exact', 'fuzzy', 'none')),
	similarity REAL NOT NULL,
	confidence REAL NOT NULL,
	confidence_reasons TEXT NOT NULL,
	heading TEXT NOT NULL DEFAULT '',
	page_number INTEGER,
	char_start INTEGER,
	char_end INTEGER,
	created_at TEXT NOT NULL,
	PRIMARY KEY (document_id, version_id, pass_id, sequence_index)
);
CREATE INDEX IF NOT EXISTS idx_citation_span_version ON citation_span(document_id, version_id);
`

// SQLiteStore keeps citation spans in a SQLite database
type SQLiteStore struct {
	db     *sql.DB
	path   string
	locks  *versionLocks
	logger *zap.Logger
}

// OpenSQLite creates or opens a SQLite store. ":memory:" opens a private in-memory database.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = "groundcheck.db"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		locks:  newVersionLocks(),
		logger: logger,
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Debug("opened sqlite store", zap.String("path", path))
	return s, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SavePass writes the pass and its citations in a single transaction
func (s *SQLiteStore) SavePass(ctx context.Context, pass *model.VerificationPass) error {
	if err := validatePass(pass); err != nil {
		return fmt.Errorf("validate pass: %w", err)
	}

	unlock := s.locks.lock(pass.DocumentID, pass.VersionID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := pass.CreatedAt.UTC().Format(time.RFC3339Nano)
	g := pass.Grounding
	reasons, err := json.Marshal(nonNil(g.ConfidenceReasons))
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO grounding_pass (pass_id, document_id, version_id, artifact, created_at,
			confidence, confidence_reasons, verified_count, citation_count,
			exact_matches, fuzzy_matches, can_cite, can_publish)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pass.PassID, pass.DocumentID, pass.VersionID, pass.Artifact, createdAt,
		g.Confidence, string(reasons), g.VerifiedCount, g.CitationCount,
		g.ExactMatches, g.FuzzyMatches, g.CanCite, g.CanPublish)
	if err != nil {
		return fmt.Errorf("insert pass: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO citation_span (document_id, version_id, pass_id, sequence_index, artifact,
			quote_text, claim, verified, match_method, similarity, confidence, confidence_reasons,
			heading, page_number, char_start, char_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare citation insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range pass.Citations {
		reasons, err := json.Marshal(nonNil(c.ConfidenceReasons))
		if err != nil {
			return fmt.Errorf("encode citation reasons: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			pass.DocumentID, pass.VersionID, pass.PassID, c.SequenceIndex, pass.Artifact,
			c.QuoteText, c.Claim, c.Verified, string(c.MatchMethod), c.Similarity, c.Confidence, string(reasons),
			c.Location.Section, nullInt(c.Location.Page), nullInt(c.Location.CharStart), nullInt(c.Location.CharEnd),
			createdAt)
		if err != nil {
			return fmt.Errorf("insert citation %d: %w", c.SequenceIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("saved verification pass",
		zap.String("pass_id", pass.PassID),
		zap.String("document_id", pass.DocumentID),
		zap.String("version_id", pass.VersionID),
		zap.Int("citations", len(pass.Citations)))
	return nil
}

// ListByVersion returns every stored citation of a document version
func (s *SQLiteStore) ListByVersion(ctx context.Context, documentID, versionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pass_id, sequence_index, artifact, quote_text, claim, verified, match_method,
			similarity, confidence, confidence_reasons, heading, page_number, char_start, char_end, created_at
		FROM citation_span
		WHERE document_id = ? AND version_id = ?
		ORDER BY created_at, pass_id, sequence_index`, documentID, versionID)
	if err != nil {
		return nil, fmt.Errorf("query citations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var (
			r                Record
			method, reasons  string
			createdAt        string
			page, start, end sql.NullInt64
		)
		err := rows.Scan(&r.PassID, &r.SequenceIndex, &r.Artifact, &r.QuoteText, &r.Claim, &r.Verified, &method,
			&r.Similarity, &r.Confidence, &reasons, &r.Location.Section, &page, &start, &end, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan citation: %w", err)
		}
		r.DocumentID = documentID
		r.VersionID = versionID
		r.MatchMethod = model.MatchMethod(method)
		r.Location.Page = intPtr(page)
		r.Location.CharStart = intPtr(start)
		r.Location.CharEnd = intPtr(end)
		if err := json.Unmarshal([]byte(reasons), &r.ConfidenceReasons); err != nil {
			return nil, fmt.Errorf("decode citation reasons: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate citations: %w", err)
	}

	sortRecords(records)
	return records, nil
}

// ListPasses returns the grounding summaries stored for a document version
func (s *SQLiteStore) ListPasses(ctx context.Context, documentID, versionID string) ([]PassSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pass_id, artifact, created_at, confidence, confidence_reasons, verified_count,
			citation_count, exact_matches, fuzzy_matches, can_cite, can_publish
		FROM grounding_pass
		WHERE document_id = ? AND version_id = ?
		ORDER BY created_at, pass_id`, documentID, versionID)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var passes []PassSummary
	for rows.Next() {
		var (
			p                  PassSummary
			reasons, createdAt string
		)
		g := &p.Grounding
		err := rows.Scan(&p.PassID, &p.Artifact, &createdAt, &g.Confidence, &reasons, &g.VerifiedCount,
			&g.CitationCount, &g.ExactMatches, &g.FuzzyMatches, &g.CanCite, &g.CanPublish)
		if err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		p.DocumentID = documentID
		p.VersionID = versionID
		if err := json.Unmarshal([]byte(reasons), &g.ConfidenceReasons); err != nil {
			return nil, fmt.Errorf("decode pass reasons: %w", err)
		}
		if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}

	sortPasses(passes)
	return passes, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
