package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/docklite/internal/core/crypto"
	"github.com/artpar/docklite/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db        *sqlx.DB
	secretKey []byte // seals env_vars when set
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithSecret encrypts deployment env vars at rest under a key derived from
// passphrase. Rows written without a secret remain readable.
func WithSecret(passphrase string) Option {
	return func(s *SQLiteStore) {
		if passphrase != "" {
			s.secretKey = crypto.DeriveKey(passphrase)
		}
	}
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// One writer at a time; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	s := &SQLiteStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStoreError("Ping", "", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

// =============================================================================
// Deployment Operations
// =============================================================================

// deploymentRow represents a deployment row in the database.
type deploymentRow struct {
	Seq            int64   `db:"seq"`
	ID             string  `db:"id"`
	Name           string  `db:"name"`
	Domain         string  `db:"domain"`
	Slug           *string `db:"slug"`
	Port           int     `db:"port"`
	ComposeContent string  `db:"compose_content"`
	EnvVars        *string `db:"env_vars"`
	Status         string  `db:"status"`
	ErrorMessage   string  `db:"error_message"`
	CreatedAt      string  `db:"created_at"`
	UpdatedAt      string  `db:"updated_at"`
	StartedAt      *string `db:"started_at"`
	StoppedAt      *string `db:"stopped_at"`
}

// CreateDeployment inserts the deployment and derives its slug from the
// sequence number the database assigns, both in one transaction.
func (s *SQLiteStore) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("CreateDeployment", "deployment", deployment.ID, err.Error(), ErrTxFailed)
	}

	seq, err := s.insertDeployment(ctx, tx, deployment)
	if err != nil {
		tx.Rollback()
		return err
	}

	slug := domain.GenerateSlug(deployment.Domain, seq)
	if _, err := tx.ExecContext(ctx, `UPDATE deployments SET slug = ? WHERE seq = ?`, slug, seq); err != nil {
		tx.Rollback()
		return NewStoreError("CreateDeployment", "deployment", deployment.ID, err.Error(), err)
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("CreateDeployment", "deployment", deployment.ID, err.Error(), ErrTxFailed)
	}

	deployment.Seq = seq
	deployment.Slug = slug
	return nil
}

func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*domain.Deployment, error) {
	return s.getDeploymentBy(ctx, s.db, "GetDeployment", "id", id)
}

func (s *SQLiteStore) GetDeploymentBySlug(ctx context.Context, slug string) (*domain.Deployment, error) {
	return s.getDeploymentBy(ctx, s.db, "GetDeploymentBySlug", "slug", slug)
}

func (s *SQLiteStore) GetDeploymentByDomain(ctx context.Context, hostname string) (*domain.Deployment, error) {
	return s.getDeploymentBy(ctx, s.db, "GetDeploymentByDomain", "domain", domain.NormalizeDomain(hostname))
}

func (s *SQLiteStore) UpdateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return s.updateDeployment(ctx, s.db, deployment)
}

func (s *SQLiteStore) DeleteDeployment(ctx context.Context, id string) error {
	return deleteDeployment(ctx, s.db, id)
}

func (s *SQLiteStore) ListDeployments(ctx context.Context, opts ListOptions) ([]domain.Deployment, error) {
	return s.listDeployments(ctx, s.db, opts)
}

// =============================================================================
// Implementation Functions
// =============================================================================

func (s *SQLiteStore) insertDeployment(ctx context.Context, exec executor, deployment *domain.Deployment) (int64, error) {
	row, err := s.deploymentToRow("CreateDeployment", deployment)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO deployments (
			id, name, domain, port, compose_content, env_vars,
			status, error_message, created_at, updated_at, started_at, stopped_at
		) VALUES (
			:id, :name, :domain, :port, :compose_content, :env_vars,
			:status, :error_message, :created_at, :updated_at, :started_at, :stopped_at
		)`

	res, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return 0, constraintError("CreateDeployment", deployment, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, NewStoreError("CreateDeployment", "deployment", deployment.ID, err.Error(), err)
	}
	return seq, nil
}

// getDeploymentBy looks a deployment up by one of its unique columns.
// column is never caller input.
func (s *SQLiteStore) getDeploymentBy(ctx context.Context, exec executor, op, column, value string) (*domain.Deployment, error) {
	query := `SELECT * FROM deployments WHERE ` + column + ` = ?`

	var row deploymentRow
	err := exec.GetContext(ctx, &row, query, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError(op, "deployment", value, "deployment not found", ErrNotFound)
		}
		return nil, NewStoreError(op, "deployment", value, err.Error(), err)
	}

	return s.rowToDeployment(&row)
}

func (s *SQLiteStore) updateDeployment(ctx context.Context, exec executor, deployment *domain.Deployment) error {
	row, err := s.deploymentToRow("UpdateDeployment", deployment)
	if err != nil {
		return err
	}

	query := `
		UPDATE deployments SET
			name = :name,
			domain = :domain,
			port = :port,
			compose_content = :compose_content,
			env_vars = :env_vars,
			status = :status,
			error_message = :error_message,
			updated_at = :updated_at,
			started_at = :started_at,
			stopped_at = :stopped_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return constraintError("UpdateDeployment", deployment, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("UpdateDeployment", "deployment", deployment.ID, err.Error(), err)
	}
	if rows == 0 {
		return NewStoreError("UpdateDeployment", "deployment", deployment.ID, "deployment not found", ErrNotFound)
	}

	return nil
}

func deleteDeployment(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM deployments WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteDeployment", "deployment", id, err.Error(), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("DeleteDeployment", "deployment", id, err.Error(), err)
	}
	if rows == 0 {
		return NewStoreError("DeleteDeployment", "deployment", id, "deployment not found", ErrNotFound)
	}

	return nil
}

func (s *SQLiteStore) listDeployments(ctx context.Context, exec executor, opts ListOptions) ([]domain.Deployment, error) {
	opts = opts.Normalize()

	query := `SELECT * FROM deployments`
	args := []any{}
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY seq DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	var rows []deploymentRow
	if err := exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError("ListDeployments", "deployment", "", err.Error(), err)
	}

	deployments := make([]domain.Deployment, 0, len(rows))
	for i := range rows {
		d, err := s.rowToDeployment(&rows[i])
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}

	return deployments, nil
}

// =============================================================================
// Conversion Functions
// =============================================================================

func constraintError(op string, deployment *domain.Deployment, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: deployments.domain"):
		return NewStoreError(op, "deployment", deployment.ID, fmt.Sprintf("domain %s is already in use", deployment.Domain), ErrDuplicateDomain)
	case strings.Contains(msg, "UNIQUE constraint failed: deployments.id"):
		return NewStoreError(op, "deployment", deployment.ID, "deployment with this ID already exists", ErrDuplicateID)
	}
	return NewStoreError(op, "deployment", deployment.ID, msg, err)
}

func (s *SQLiteStore) deploymentToRow(op string, deployment *domain.Deployment) (map[string]any, error) {
	var envJSON *string
	if len(deployment.EnvVars) > 0 {
		b, err := json.Marshal(deployment.EnvVars)
		if err != nil {
			return nil, NewStoreError(op, "deployment", deployment.ID, "failed to serialize env vars", ErrInvalidData)
		}
		text := string(b)
		if s.secretKey != nil {
			if text, err = crypto.Seal(text, s.secretKey); err != nil {
				return nil, NewStoreError(op, "deployment", deployment.ID, "failed to encrypt env vars", ErrInvalidData)
			}
		}
		envJSON = &text
	}

	return map[string]any{
		"id":              deployment.ID,
		"name":            deployment.Name,
		"domain":          deployment.Domain,
		"port":            deployment.Port,
		"compose_content": deployment.ComposeContent,
		"env_vars":        envJSON,
		"status":          string(deployment.Status),
		"error_message":   deployment.ErrorMessage,
		"created_at":      deployment.CreatedAt.Format(time.RFC3339),
		"updated_at":      deployment.UpdatedAt.Format(time.RFC3339),
		"started_at":      formatTime(deployment.StartedAt),
		"stopped_at":      formatTime(deployment.StoppedAt),
	}, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}

// rowToDeployment converts a database row to a domain.Deployment.
func (s *SQLiteStore) rowToDeployment(row *deploymentRow) (*domain.Deployment, error) {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	var envVars map[string]string
	if row.EnvVars != nil && *row.EnvVars != "" && *row.EnvVars != "null" {
		text, err := crypto.Open(*row.EnvVars, s.secretKey)
		if err != nil {
			return nil, NewStoreError("rowToDeployment", "deployment", row.ID, "failed to decrypt env vars: "+err.Error(), ErrInvalidData)
		}
		if err := json.Unmarshal([]byte(text), &envVars); err != nil {
			return nil, NewStoreError("rowToDeployment", "deployment", row.ID, "failed to parse env vars", ErrInvalidData)
		}
	}

	var slug string
	if row.Slug != nil {
		slug = *row.Slug
	}

	return &domain.Deployment{
		ID:             row.ID,
		Seq:            row.Seq,
		Name:           row.Name,
		Domain:         row.Domain,
		Slug:           slug,
		Port:           row.Port,
		ComposeContent: row.ComposeContent,
		EnvVars:        envVars,
		Status:         domain.DeploymentStatus(row.Status),
		ErrorMessage:   row.ErrorMessage,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		StartedAt:      parseTime(row.StartedAt),
		StoppedAt:      parseTime(row.StoppedAt),
	}, nil
}
