// Package app wires configuration into the running pieces shared by the
// server and the command line: the store backend, the project catalogue, the
// upload directory and the identity directory.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/emgroup/sitesync/internal/auth"
	"github.com/emgroup/sitesync/internal/blob"
	"github.com/emgroup/sitesync/internal/config"
	"github.com/emgroup/sitesync/internal/domain/project"
	"github.com/emgroup/sitesync/internal/localstore"
	"github.com/emgroup/sitesync/internal/postgres"
	"github.com/emgroup/sitesync/internal/redisstore"
	"github.com/emgroup/sitesync/internal/sqlite"
	"github.com/emgroup/sitesync/internal/store"
	"github.com/emgroup/sitesync/internal/store/memstore"
	"github.com/emgroup/sitesync/internal/workspace"
)

// ErrNoIdentity is returned when no email was given and none is configured.
var ErrNoIdentity = errors.New("no user email given; set SITESYNC_USER_EMAIL or pass one")

// Runtime holds the long-lived dependencies of a process.
type Runtime struct {
	Config    config.Config
	DB        *sqlite.DB
	Store     store.Store
	Projects  *project.Service
	Uploads   *blob.FS
	Directory *auth.Directory

	logger *slog.Logger
}

// Open prepares every dependency named by cfg. The project catalogue always
// lives in the SQLite database; records live in the configured backend.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return nil, fmt.Errorf("preparing database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	projects := project.NewService(sqlite.NewProjectRepository(db), logger)
	if err := projects.EnsureSeeded(ctx); err != nil {
		db.Close()
		return nil, err
	}

	st, err := OpenStore(ctx, cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	uploads, err := blob.NewFS(cfg.Uploads.Dir, cfg.Uploads.BaseURL, cfg.Uploads.MaxSize)
	if err != nil {
		st.Close()
		db.Close()
		return nil, err
	}

	logger.Info("runtime ready", "backend", cfg.Store.Backend, "db", cfg.DB.Path)
	return &Runtime{
		Config:    cfg,
		DB:        db,
		Store:     st,
		Projects:  projects,
		Uploads:   uploads,
		Directory: auth.NewDirectory(cfg.Auth.AdminEmail, cfg.Auth.AdminName),
		logger:    logger,
	}, nil
}

// OpenStore opens the configured backend. The sqlite backend shares db.
func OpenStore(ctx context.Context, cfg config.Config, db *sqlite.DB, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memstore.New(), nil
	case config.BackendSQLite:
		return sqlite.NewStore(db, sqlite.StoreOptions{
			PollInterval: cfg.DB.PollInterval,
			Logger:       logger,
		}), nil
	case config.BackendLocal:
		st, err := localstore.New(localstore.Options{
			Dir:    cfg.Local.Dir,
			Watch:  cfg.Local.Watch,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening local store: %w", err)
		}
		return st, nil
	case config.BackendRedis:
		st, err := redisstore.New(ctx, redisstore.Options{
			Addr:      cfg.Redis.Addr,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening redis store: %w", err)
		}
		return st, nil
	case config.BackendPostgres:
		st, err := postgres.New(ctx, postgres.Options{
			DSN:       cfg.Postgres.DSN,
			Namespace: cfg.Postgres.Namespace,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Identify resolves email, or the configured default when email is empty.
func (r *Runtime) Identify(email string) (auth.Identity, error) {
	if strings.TrimSpace(email) == "" {
		email = r.Config.Auth.DefaultEmail
	}
	if strings.TrimSpace(email) == "" {
		return auth.Identity{}, ErrNoIdentity
	}
	return r.Directory.Identify(email)
}

// OpenWorkspace creates and opens a workspace session. An empty projectID
// selects the configured default project; an id missing from the catalogue
// fails with project.ErrProjectNotFound.
func (r *Runtime) OpenWorkspace(ctx context.Context, projectID string, who auth.Identity) (*workspace.Workspace, error) {
	if strings.TrimSpace(projectID) == "" {
		projectID = r.Config.Workspace.Project
	}
	// An unknown id would otherwise seed a document tree under it.
	if _, err := r.Projects.Get(ctx, projectID); err != nil {
		return nil, fmt.Errorf("opening workspace %q: %w", projectID, err)
	}
	ws, err := workspace.New(r.Store, r.Projects, r.Uploads, workspace.Options{
		ProjectID:          projectID,
		Identity:           who,
		Optimistic:         r.Config.Workspace.Optimistic,
		VersionedDocuments: r.Config.Workspace.VersionedDocuments,
		WriteTimeout:       r.Config.Workspace.WriteTimeout,
	}, r.logger)
	if err != nil {
		return nil, err
	}
	if err := ws.Open(ctx); err != nil {
		return nil, err
	}
	return ws, nil
}

// Close releases the store and the database.
func (r *Runtime) Close() error {
	return errors.Join(r.Store.Close(), r.DB.Close())
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
