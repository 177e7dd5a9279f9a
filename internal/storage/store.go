// Package storage persists catalogs in a SQLite database so batch and watch runs
// can be queried after the fact.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// Store writes and reads catalogs.
type Store struct {
	db     *sql.DB
	ownsDB bool
	logger *log.Logger
}

// Run is one scan invocation.
type Run struct {
	ID              string
	RootPath        string
	PipelineVersion string
	StartedAt       time.Time
}

// Artifact is a stored catalog header.
type Artifact struct {
	ID         string
	RunID      string
	TargetPath string
	TargetName string
	TargetKind catalog.FileKind
	SizeBytes  int64
	ScannedAt  time.Time
	Total      int
}

// Invocable is a stored catalog entry. Execution keeps the document encoding.
type Invocable struct {
	ID          string
	ArtifactID  string
	Position    int
	Name        string
	Kind        catalog.FileKind
	Tier        confidence.Tier
	Rationale   []string
	Description string
	Signature   string
	Return      *catalog.ReturnType
	Parameters  []catalog.Parameter
	OriginPath  string
	OriginLine  int
	Method      catalog.Method
	Execution   json.RawMessage
}

// Open opens or creates the database at dbPath and creates the schema if needed.
func Open(dbPath string, logger *log.Logger) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check schema version: %w", err)
	}
	if version == "0" {
		if err := CreateSchema(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	s := NewWithDB(db, logger)
	s.ownsDB = true
	return s, nil
}

// NewWithDB wraps an existing connection. The caller manages the schema and the
// connection lifecycle.
func NewWithDB(db *sql.DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Store{db: db, logger: logger}
}

// BeginRun records a new run and returns its id.
func (s *Store) BeginRun(rootPath, pipelineVersion string) (string, error) {
	id := uuid.New().String()
	_, err := sq.Insert("runs").
		Columns("run_id", "root_path", "pipeline_version", "started_at").
		Values(id, rootPath, pipelineVersion, time.Now().UTC().Format(time.RFC3339)).
		RunWith(s.db).
		Exec()
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	s.logger.Debug("run started", "run_id", id, "root", rootPath)
	return id, nil
}

// SaveCatalog stores c under runID. A catalog already stored for the same target in
// the same run is replaced. Returns the artifact id.
func (s *Store) SaveCatalog(runID string, c *catalog.Catalog) (string, error) {
	if c == nil {
		return "", fmt.Errorf("nil catalog")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = sq.Delete("artifacts").
		Where(sq.Eq{"run_id": runID, "target_path": c.Metadata.TargetPath}).
		RunWith(tx).
		Exec()
	if err != nil {
		return "", fmt.Errorf("failed to replace artifact %s: %w", c.Metadata.TargetPath, err)
	}

	artifactID := uuid.New().String()
	scannedAt := c.Metadata.Timestamp
	if scannedAt.IsZero() {
		scannedAt = time.Now()
	}
	_, err = sq.Insert("artifacts").
		Columns("artifact_id", "run_id", "target_path", "target_name", "target_kind", "size_bytes", "scanned_at", "total").
		Values(
			artifactID,
			runID,
			c.Metadata.TargetPath,
			c.Metadata.TargetName,
			string(c.Metadata.TargetKind),
			c.Metadata.SizeBytes,
			scannedAt.UTC().Format(time.RFC3339),
			c.Summary.Total,
		).
		RunWith(tx).
		Exec()
	if err != nil {
		return "", fmt.Errorf("failed to insert artifact %s: %w", c.Metadata.TargetPath, err)
	}

	for i, inv := range c.Invocables {
		row, err := encodeInvocable(inv)
		if err != nil {
			return "", err
		}
		_, err = sq.Insert("invocables").
			Columns("invocable_id", "artifact_id", "position", "name", "kind", "confidence", "rationale",
				"description", "signature", "return_type", "parameters", "origin_path", "origin_line",
				"execution_method", "execution").
			Values(
				uuid.New().String(),
				artifactID,
				i,
				inv.Name,
				string(inv.Kind),
				inv.Confidence.Tier.String(),
				row.rationale,
				nullableString(inv.Documentation),
				inv.Signature,
				row.ret,
				row.params,
				inv.Origin.Path,
				nullableInt(inv.Origin.Line),
				string(inv.Execution.Method()),
				row.execution,
			).
			RunWith(tx).
			Exec()
		if err != nil {
			return "", fmt.Errorf("failed to insert invocable %s: %w", inv.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("catalog stored", "path", c.Metadata.TargetPath, "run_id", runID, "invocables", len(c.Invocables))
	return artifactID, nil
}

type encodedInvocable struct {
	rationale string
	ret       any
	params    string
	execution string
}

func encodeInvocable(inv catalog.Invocable) (encodedInvocable, error) {
	var out encodedInvocable
	if inv.Execution == nil {
		return out, fmt.Errorf("invocable %s has no execution", inv.Name)
	}

	rationale := inv.Confidence.Rationale
	if rationale == nil {
		rationale = []string{}
	}
	b, err := json.Marshal(rationale)
	if err != nil {
		return out, fmt.Errorf("failed to encode rationale for %s: %w", inv.Name, err)
	}
	out.rationale = string(b)

	params := inv.Parameters
	if params == nil {
		params = []catalog.Parameter{}
	}
	if b, err = json.Marshal(params); err != nil {
		return out, fmt.Errorf("failed to encode parameters for %s: %w", inv.Name, err)
	}
	out.params = string(b)

	if inv.Return != nil {
		if b, err = json.Marshal(inv.Return); err != nil {
			return out, fmt.Errorf("failed to encode return type for %s: %w", inv.Name, err)
		}
		out.ret = string(b)
	}

	if b, err = catalog.MarshalExecution(inv.Execution); err != nil {
		return out, fmt.Errorf("failed to encode execution for %s: %w", inv.Name, err)
	}
	out.execution = string(b)
	return out, nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(runID string) (*Run, error) {
	var (
		run     Run
		started string
	)
	err := sq.Select("run_id", "root_path", "pipeline_version", "started_at").
		From("runs").
		Where(sq.Eq{"run_id": runID}).
		RunWith(s.db).
		QueryRow().
		Scan(&run.ID, &run.RootPath, &run.PipelineVersion, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, started)
	return &run, nil
}

// ListArtifacts returns the artifacts stored for a run, ordered by path.
func (s *Store) ListArtifacts(runID string) ([]Artifact, error) {
	rows, err := sq.Select("artifact_id", "run_id", "target_path", "target_name", "target_kind", "size_bytes", "scanned_at", "total").
		From("artifacts").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("target_path").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var (
			a       Artifact
			kind    string
			scanned string
		)
		if err := rows.Scan(&a.ID, &a.RunID, &a.TargetPath, &a.TargetName, &kind, &a.SizeBytes, &scanned, &a.Total); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.TargetKind = catalog.FileKind(kind)
		a.ScannedAt, _ = time.Parse(time.RFC3339, scanned)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}
	return out, nil
}

var invocableColumns = []string{
	"invocable_id", "artifact_id", "position", "name", "kind", "confidence", "rationale",
	"description", "signature", "return_type", "parameters", "origin_path", "origin_line",
	"execution_method", "execution",
}

// ReadInvocables returns an artifact's invocables in catalog order.
func (s *Store) ReadInvocables(artifactID string) ([]Invocable, error) {
	return s.queryInvocables(
		sq.Select(invocableColumns...).
			From("invocables").
			Where(sq.Eq{"artifact_id": artifactID}).
			OrderBy("position"),
	)
}

// FindByName returns every stored invocable with the given name, optionally
// restricted to tiers at or above minTier.
func (s *Store) FindByName(name string, minTier confidence.Tier) ([]Invocable, error) {
	var tiers []string
	for _, t := range confidence.AllTiers() {
		if t >= minTier {
			tiers = append(tiers, t.String())
		}
	}
	return s.queryInvocables(
		sq.Select(invocableColumns...).
			From("invocables").
			Where(sq.Eq{"name": name, "confidence": tiers}).
			OrderBy("artifact_id", "position"),
	)
}

func (s *Store) queryInvocables(q sq.SelectBuilder) ([]Invocable, error) {
	rows, err := q.RunWith(s.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query invocables: %w", err)
	}
	defer rows.Close()

	var out []Invocable
	for rows.Next() {
		inv, err := scanInvocable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocable: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invocables: %w", err)
	}
	return out, nil
}

func scanInvocable(rows *sql.Rows) (Invocable, error) {
	var (
		inv                     Invocable
		kind, tier, method      string
		rationale, params, exec string
		description, ret        sql.NullString
		line                    sql.NullInt64
	)
	err := rows.Scan(&inv.ID, &inv.ArtifactID, &inv.Position, &inv.Name, &kind, &tier, &rationale,
		&description, &inv.Signature, &ret, &params, &inv.OriginPath, &line, &method, &exec)
	if err != nil {
		return inv, err
	}

	inv.Kind = catalog.FileKind(kind)
	inv.Method = catalog.Method(method)
	inv.Description = description.String
	inv.OriginLine = int(line.Int64)
	inv.Execution = json.RawMessage(exec)
	if inv.Tier, err = confidence.ParseTier(tier); err != nil {
		return inv, err
	}
	if err := json.Unmarshal([]byte(rationale), &inv.Rationale); err != nil {
		return inv, fmt.Errorf("bad rationale: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &inv.Parameters); err != nil {
		return inv, fmt.Errorf("bad parameters: %w", err)
	}
	if ret.Valid {
		inv.Return = &catalog.ReturnType{}
		if err := json.Unmarshal([]byte(ret.String), inv.Return); err != nil {
			return inv, fmt.Errorf("bad return type: %w", err)
		}
	}
	return inv, nil
}

// DeleteRun removes a run and, by cascade, its artifacts and invocables.
func (s *Store) DeleteRun(runID string) error {
	res, err := sq.Delete("runs").Where(sq.Eq{"run_id": runID}).RunWith(s.db).Exec()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// Close closes the connection when the store opened it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func nullableInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
