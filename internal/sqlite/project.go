package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emgroup/sitesync/internal/domain/project"
	"github.com/emgroup/sitesync/internal/repository"
)

// ProjectRepository implements project.Repository for SQLite
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, name, status, location, summary, focus, coordination, image, last_updated`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*project.Project, error) {
	var proj project.Project
	err := row.Scan(
		&proj.ID,
		&proj.Name,
		&proj.Status,
		&proj.Location,
		&proj.Summary,
		&proj.Focus,
		&proj.Coordination,
		&proj.Image,
		&proj.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &proj, nil
}

// Create creates a new project
func (r *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		proj.ID,
		proj.Name,
		proj.Status,
		proj.Location,
		proj.Summary,
		proj.Focus,
		proj.Coordination,
		proj.Image,
		proj.LastUpdated,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// Get retrieves a project by ID
func (r *ProjectRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	proj, err := scanProject(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return proj, nil
}

// List returns all projects in creation order
func (r *ProjectRepository) List(ctx context.Context) ([]project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY rowid ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []project.Project{}
	for rows.Next() {
		proj, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *proj)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return projects, nil
}

// Update overwrites the editable fields of a project
func (r *ProjectRepository) Update(ctx context.Context, proj *project.Project) error {
	query := `
		UPDATE projects
		SET name = ?, status = ?, location = ?, summary = ?, focus = ?,
		    coordination = ?, image = ?, last_updated = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		proj.Name,
		proj.Status,
		proj.Location,
		proj.Summary,
		proj.Focus,
		proj.Coordination,
		proj.Image,
		proj.LastUpdated,
		proj.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ project.Repository = (*ProjectRepository)(nil)
