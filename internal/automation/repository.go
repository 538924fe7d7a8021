package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists scene definitions.
type Repository interface {
	List(ctx context.Context) ([]Scene, error)
	Get(ctx context.Context, id string) (*Scene, error)
	Create(ctx context.Context, scene *Scene) error
	Update(ctx context.Context, scene *Scene) error
	Delete(ctx context.Context, id string) error
}

const sceneColumns = `id, name, slug, description, icon, enabled, sort_order, actions, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns all scenes ordered by sort_order then name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Scene, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sceneColumns+` FROM scenes ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("querying scenes: %w", err)
	}
	defer rows.Close()

	var scenes []Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, *scene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenes: %w", err)
	}
	return scenes, nil
}

// Get returns a scene by ID or slug.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Scene, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE id = ? OR slug = ? LIMIT 1`, id, id)
	scene, err := scanScene(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSceneNotFound
		}
		return nil, err
	}
	return scene, nil
}

// Create inserts a new scene, filling in ID and slug when empty.
func (r *SQLiteRepository) Create(ctx context.Context, scene *Scene) error {
	if scene.ID == "" {
		scene.ID = GenerateID()
	}
	if scene.Slug == "" {
		scene.Slug = GenerateSlug(scene.Name)
	}
	actionsJSON, err := json.Marshal(scene.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions: %w", err)
	}

	now := time.Now().UTC()
	if scene.CreatedAt.IsZero() {
		scene.CreatedAt = now
	}
	scene.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scenes (`+sceneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scene.ID,
		scene.Name,
		scene.Slug,
		scene.Description,
		scene.Icon,
		boolToInt(scene.Enabled),
		scene.SortOrder,
		string(actionsJSON),
		scene.CreatedAt.Format(time.RFC3339),
		scene.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSceneExists
		}
		return fmt.Errorf("inserting scene: %w", err)
	}
	return nil
}

// Update replaces an existing scene.
func (r *SQLiteRepository) Update(ctx context.Context, scene *Scene) error {
	actionsJSON, err := json.Marshal(scene.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions: %w", err)
	}
	scene.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE scenes SET
			name = ?, slug = ?, description = ?, icon = ?, enabled = ?,
			sort_order = ?, actions = ?, updated_at = ?
		WHERE id = ?`,
		scene.Name,
		scene.Slug,
		scene.Description,
		scene.Icon,
		boolToInt(scene.Enabled),
		scene.SortOrder,
		string(actionsJSON),
		scene.UpdatedAt.Format(time.RFC3339),
		scene.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSceneExists
		}
		return fmt.Errorf("updating scene: %w", err)
	}
	return requireRow(result)
}

// Delete removes a scene by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM scenes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting scene: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrSceneNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScene(row rowScanner) (*Scene, error) {
	var (
		s                    Scene
		enabled              int
		actionsJSON          string
		createdAt, updatedAt string
	)
	err := row.Scan(&s.ID, &s.Name, &s.Slug, &s.Description, &s.Icon, &enabled,
		&s.SortOrder, &actionsJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning scene: %w", err)
	}
	s.Enabled = enabled != 0

	if err := json.Unmarshal([]byte(actionsJSON), &s.Actions); err != nil {
		return nil, fmt.Errorf("unmarshalling actions for scene %s: %w", s.ID, err)
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
