package sqlite

import (
	"context"
	"testing"

	"github.com/emgroup/sitesync/internal/domain/project"
	"github.com/emgroup/sitesync/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestProjectRepository_Create(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	proj := &project.Project{
		ID:          "p1",
		Name:        "Test Project",
		Status:      "Planning",
		Location:    "Hamilton",
		LastUpdated: "2025-12-01",
	}

	err := repo.Create(ctx, proj)
	require.NoError(t, err)

	retrieved, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, proj, retrieved)

	err = repo.Create(ctx, proj)
	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestProjectRepository_Get(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	_, err := repo.Get(ctx, "nonexistent")
	require.Equal(t, repository.ErrNotFound, err)
}

func TestProjectRepository_List(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	empty, err := repo.List(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	for _, proj := range project.SeedProjects() {
		proj := proj
		require.NoError(t, repo.Create(ctx, &proj))
	}

	projects, err := repo.List(ctx)
	require.NoError(t, err)
	require.Equal(t, project.SeedProjects(), projects)
}

func TestProjectRepository_Update(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	proj := project.SeedProjects()[0]
	require.NoError(t, repo.Create(ctx, &proj))

	proj.Focus = "Bakery handover."
	proj.LastUpdated = "2025-12-20"
	require.NoError(t, repo.Update(ctx, &proj))

	retrieved, err := repo.Get(ctx, proj.ID)
	require.NoError(t, err)
	require.Equal(t, "Bakery handover.", retrieved.Focus)
	require.Equal(t, "2025-12-20", retrieved.LastUpdated)

	missing := project.Project{ID: "missing", Name: "x", Status: "x"}
	require.Equal(t, repository.ErrNotFound, repo.Update(ctx, &missing))
}

func TestProjectService_WithSQLite(t *testing.T) {
	db := NewTestDB(t)
	svc := project.NewService(NewProjectRepository(db), nil)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeeded(ctx))
	focus := "Seismic strengthening."
	updated, err := svc.UpdateDetails(ctx, "south-mall", project.Details{Focus: &focus})
	require.NoError(t, err)

	stored, err := svc.Get(ctx, "south-mall")
	require.NoError(t, err)
	require.Equal(t, updated, stored)
}
