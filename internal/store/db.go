package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"leadharvest/internal/pipeline"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("lead already exists")
)

// Stages of the sales-style lead pipeline, in order.
var Stages = []string{"new", "contacted", "interviewing", "offer", "closed", "rejected"}

func ValidStage(stage string) bool {
	for _, s := range Stages {
		if s == stage {
			return true
		}
	}
	return false
}

type Store struct {
	db *sql.DB
}

func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RunMigrations(schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

func clampLimit(limit, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Lead struct {
	ID           int       `json:"id"`
	OwnerID      int       `json:"owner_id"`
	ExternalID   string    `json:"external_id,omitempty"`
	Title        string    `json:"title"`
	Organization string    `json:"organization"`
	Location     string    `json:"location,omitempty"`
	Compensation string    `json:"compensation,omitempty"`
	Snippet      string    `json:"snippet,omitempty"`
	DetailURL    string    `json:"detail_url,omitempty"`
	Source       string    `json:"source"`
	Stage        string    `json:"stage"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (int, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `
INSERT INTO users (email, password_hash, created_at)
VALUES ($1, $2, NOW())
RETURNING id
`, email, passwordHash).Scan(&id)
	return id, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
SELECT id, email, password_hash, created_at FROM users WHERE email = $1
`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateSession(ctx context.Context, token string, userID int, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (token, user_id, expires_at, created_at)
VALUES ($1, $2, $3, NOW())
`, token, userID, expiresAt)
	return err
}

// ResolveSession returns the owning user id for a live session token.
func (s *Store) ResolveSession(ctx context.Context, token string) (int, error) {
	var userID int
	err := s.db.QueryRowContext(ctx, `
SELECT user_id FROM sessions WHERE token = $1 AND expires_at > NOW()
`, token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return userID, err
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// BulkImportLeads persists a run's normalized listings for one owner. The
// insert is idempotent: re-importing the same run inserts nothing new, keyed
// by the listing's natural key (externalId, else detailUrl).
func (s *Store) BulkImportLeads(ctx context.Context, ownerID int, listings []pipeline.NormalizedListing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO leads (owner_id, natural_key, external_id, title, organization, location, compensation, snippet, detail_url, source, stage, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'new', NOW(), NOW())
ON CONFLICT (owner_id, natural_key) DO NOTHING
`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, l := range listings {
		key := l.ExternalID
		if key == "" {
			key = l.DetailURL
		}
		if key == "" {
			continue // pipeline invariant guarantees one of the two, but stay safe
		}
		res, err := stmt.ExecContext(ctx, ownerID, key, l.ExternalID, l.Title, l.Organization, l.Location, l.Compensation, l.Snippet, l.DetailURL, l.Source)
		if err != nil {
			return 0, fmt.Errorf("lead insert failed: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) ListLeads(ctx context.Context, ownerID int, stage string, limit, offset int) ([]Lead, int, error) {
	limit = clampLimit(limit, 20, 200)
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM leads WHERE owner_id = $1 AND ($2 = '' OR stage = $2)
`, ownerID, stage).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, owner_id, COALESCE(external_id, ''), COALESCE(title, ''), COALESCE(organization, ''),
       COALESCE(location, ''), COALESCE(compensation, ''), COALESCE(snippet, ''), COALESCE(detail_url, ''),
       source, stage, notes, created_at, updated_at
FROM leads
WHERE owner_id = $1 AND ($2 = '' OR stage = $2)
ORDER BY updated_at DESC, id DESC
LIMIT $3 OFFSET $4
`, ownerID, stage, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(
			&l.ID, &l.OwnerID, &l.ExternalID, &l.Title, &l.Organization,
			&l.Location, &l.Compensation, &l.Snippet, &l.DetailURL,
			&l.Source, &l.Stage, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		leads = append(leads, l)
	}
	return leads, total, rows.Err()
}

// CreateLead inserts a manually-entered lead. The natural key follows the
// import rule (externalId, else detailUrl) and falls back to a random token so
// hand-entered leads without either can still coexist.
func (s *Store) CreateLead(ctx context.Context, ownerID int, l *Lead) (int, error) {
	key := l.ExternalID
	if key == "" {
		key = l.DetailURL
	}
	if key == "" {
		key = "manual:" + uuid.NewString()
	}
	source := l.Source
	if source == "" {
		source = "manual"
	}
	stage := l.Stage
	if stage == "" {
		stage = "new"
	}

	var id int
	err := s.db.QueryRowContext(ctx, `
INSERT INTO leads (owner_id, natural_key, external_id, title, organization, location, compensation, snippet, detail_url, source, stage, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
ON CONFLICT (owner_id, natural_key) DO NOTHING
RETURNING id
`, ownerID, key, l.ExternalID, l.Title, l.Organization, l.Location, l.Compensation, l.Snippet, l.DetailURL, source, stage, l.Notes).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrDuplicate
	}
	return id, err
}

func (s *Store) GetLead(ctx context.Context, ownerID, leadID int) (*Lead, error) {
	var l Lead
	err := s.db.QueryRowContext(ctx, `
SELECT id, owner_id, COALESCE(external_id, ''), COALESCE(title, ''), COALESCE(organization, ''),
       COALESCE(location, ''), COALESCE(compensation, ''), COALESCE(snippet, ''), COALESCE(detail_url, ''),
       source, stage, notes, created_at, updated_at
FROM leads
WHERE owner_id = $1 AND id = $2
`, ownerID, leadID).Scan(
		&l.ID, &l.OwnerID, &l.ExternalID, &l.Title, &l.Organization,
		&l.Location, &l.Compensation, &l.Snippet, &l.DetailURL,
		&l.Source, &l.Stage, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) UpdateLead(ctx context.Context, ownerID, leadID int, stage, notes *string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE leads
SET stage = COALESCE($3, stage),
    notes = COALESCE($4, notes),
    updated_at = NOW()
WHERE owner_id = $1 AND id = $2
`, ownerID, leadID, stage, notes)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteLead(ctx context.Context, ownerID, leadID int) error {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM leads WHERE owner_id = $1 AND id = $2
`, ownerID, leadID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// StageSummary returns lead counts per pipeline stage for the dashboard.
func (s *Store) StageSummary(ctx context.Context, ownerID int) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT stage, COUNT(*) FROM leads WHERE owner_id = $1 GROUP BY stage
`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := make(map[string]int, len(Stages))
	for _, stage := range Stages {
		summary[stage] = 0
	}
	for rows.Next() {
		var (
			stage string
			count int
		)
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		summary[stage] = count
	}
	return summary, rows.Err()
}

func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
