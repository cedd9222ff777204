// Package bootstrap connects the stores, cache and media pipeline shared by
// the server and the command line tools.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fundsphere/internal/cache"
	"fundsphere/internal/config"
	"fundsphere/internal/database"
	"fundsphere/internal/media"
	"fundsphere/internal/middleware"
	"fundsphere/internal/models"
	"fundsphere/internal/repository"
	"fundsphere/internal/repository/mongostore"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// Options control runtime initialization behavior.
type Options struct {
	// WithMedia builds the blob store and upload worker pool.
	WithMedia bool
	// EnsureRootAdmin creates or promotes the configured root admin outside production.
	EnsureRootAdmin bool
}

// Runtime holds initialized collaborators. Redis and Ingestor may be nil.
type Runtime struct {
	Config    *config.Config
	Stores    *repository.Stores
	Redis     *redis.Client
	Ingestor  *media.Ingestor
	UploadDir string

	closers []func(context.Context) error
}

// InitRuntime connects the configured store and Redis and, when asked, the
// media pipeline. A Redis outage is logged and tolerated.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	if err := rt.connectStore(ctx); err != nil {
		return nil, err
	}

	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			middleware.Logger.Warn("redis unavailable, continuing without cache", slog.String("error", err.Error()))
		} else {
			rt.Redis = client
			rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
		}
	}

	if opts.WithMedia {
		if err := rt.initMedia(); err != nil {
			_ = rt.Close(ctx)
			return nil, err
		}
	}

	if opts.EnsureRootAdmin {
		if err := EnsureRootAdmin(ctx, cfg, rt.Stores.Users); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("failed to bootstrap root admin: %w", err)
		}
	}

	return rt, nil
}

func (rt *Runtime) connectStore(ctx context.Context) error {
	cfg := rt.Config
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		db := client.Database(cfg.MongoDB)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return err
		}
		rt.Stores = mongostore.NewStores(db)
		rt.closers = append(rt.closers, client.Disconnect)
		middleware.Logger.Info("mongo store connected", slog.String("db", cfg.MongoDB))
	default:
		db, err := database.Connect(cfg)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		rt.Stores = repository.NewGormStores(db)
		rt.closers = append(rt.closers, func(context.Context) error { return database.Close(db) })
	}
	return nil
}

func (rt *Runtime) initMedia() error {
	cfg := rt.Config

	var store media.BlobStore
	switch cfg.MediaStore {
	case config.MediaStoreCloudinary:
		cld, err := media.NewCloudinaryStore(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		if err != nil {
			return err
		}
		store = cld
	default:
		local, err := media.NewLocalStore(cfg.MediaUploadDir, cfg.MediaPublicBaseURL)
		if err != nil {
			return err
		}
		store = local
		rt.UploadDir = local.Dir()
	}

	ingestor, err := media.NewIngestor(store, media.Options{
		MaxBytes: cfg.MaxUploadBytes(),
		Timeout:  cfg.MediaUploadTimeout,
		Workers:  cfg.MediaWorkers,
	})
	if err != nil {
		return err
	}
	rt.Ingestor = ingestor
	rt.closers = append(rt.closers, func(context.Context) error {
		ingestor.Close()
		return nil
	})
	middleware.Logger.Info("media store ready", slog.String("store", store.Name()))
	return nil
}

// Close releases everything InitRuntime opened, newest first.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// EnsureRootAdmin creates the root admin account, or promotes the existing
// account with that email. It does nothing in production or when no password
// is configured.
func EnsureRootAdmin(ctx context.Context, cfg *config.Config, users repository.UserRepository) error {
	if cfg == nil || cfg.IsProduction() {
		return nil
	}
	email := strings.TrimSpace(strings.ToLower(cfg.RootAdminEmail))
	if email == "" || cfg.RootAdminPassword == "" {
		middleware.Logger.Info("root admin bootstrap skipped: ROOT_ADMIN_EMAIL or ROOT_ADMIN_PASSWORD not set")
		return nil
	}

	existing, err := users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.IsAdmin() {
			return nil
		}
		existing.Role = models.RoleAdmin
		existing.Status = models.UserStatusActive
		if err := users.Update(ctx, existing); err != nil {
			return err
		}
		middleware.Logger.Info("root admin promoted", slog.String("email", email))
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.RootAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash root password: %w", err)
	}
	root := &models.User{
		Username: "fundsphere_root",
		Email:    email,
		Password: string(hashed),
		Role:     models.RoleAdmin,
		UserType: models.NewUserTypes(models.UserTypeCreator, models.UserTypeDonor),
		Status:   models.UserStatusActive,
	}
	if err := users.Create(ctx, root); err != nil {
		return err
	}
	middleware.Logger.Info("root admin created", slog.String("email", email))
	return nil
}
