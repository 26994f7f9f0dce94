package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emgroup/sitesync/internal/repository"
	"github.com/google/uuid"
)

// Service handles project operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new project service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// CreateRequest defines project creation inputs.
type CreateRequest struct {
	ID     string
	Name   string
	Status string
}

// Create creates a new project.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Project, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrInvalidInput
	}

	id := req.ID
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	status := req.Status
	if status == "" {
		status = "Planning"
	}

	proj := &Project{
		ID:          id,
		Name:        req.Name,
		Status:      status,
		LastUpdated: s.now().Format(DateLayout),
	}

	if err := s.repo.Create(ctx, proj); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	return proj, nil
}

// Get fetches a project by ID.
func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	proj, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

// List returns every project.
func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx)
}

// UpdateDetails applies the set fields of details and stamps LastUpdated.
func (s *Service) UpdateDetails(ctx context.Context, id string, details Details) (*Project, error) {
	if details.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if details.Name != nil && strings.TrimSpace(*details.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}

	proj, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	details.Apply(proj)
	proj.LastUpdated = s.now().Format(DateLayout)

	if err := s.repo.Update(ctx, proj); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("updating project: %w", err)
	}
	s.logger.Info("project details updated", "project", id)
	return proj, nil
}

// EnsureSeeded loads the starter catalogue into an empty repository.
func (s *Service) EnsureSeeded(ctx context.Context) error {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	for _, proj := range SeedProjects() {
		proj := proj
		if err := s.repo.Create(ctx, &proj); err != nil {
			return fmt.Errorf("seeding project %s: %w", proj.ID, err)
		}
	}
	s.logger.Info("project catalogue seeded", "count", len(SeedProjects()))
	return nil
}
