package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrProfileNotFound is returned when a user has no profile.
var ErrProfileNotFound = fmt.Errorf("profile %w", dm.ErrNotFound)

// ProfileRepository stores user profiles.
type ProfileRepository interface {
	FindByID(ctx context.Context, userID string) (*Profile, error)
	Upsert(ctx context.Context, userID, displayName string) (*Profile, error)
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// OpenRepository opens the profile repository for driver.
func OpenRepository(ctx context.Context, driver, dsn string) (ProfileRepository, error) {
	switch driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// SQLite allows one writer; an in-memory database lives on one connection.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
		return NewGormRepository(db)
	case "postgres":
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		repo := NewPgxRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown directory driver %q", driver)
	}
}

// GormRepository is a ProfileRepository on GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository migrates the schema and returns a repository over db.
func NewGormRepository(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&Profile{}); err != nil {
		return nil, fmt.Errorf("failed to migrate profiles: %w", err)
	}
	return &GormRepository{db: db}, nil
}

// FindByID retrieves a profile by user ID.
func (r *GormRepository) FindByID(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	if err := r.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return &p, nil
}

// Upsert creates or renames a profile.
func (r *GormRepository) Upsert(ctx context.Context, userID, displayName string) (*Profile, error) {
	now := time.Now().UTC()
	p := &Profile{UserID: userID, DisplayName: displayName, CreatedAt: now, UpdatedAt: now}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return r.FindByID(ctx, userID)
}

// Ping checks the database connection.
func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Driver returns the driver name.
func (r *GormRepository) Driver() string { return "sqlite" }

// Close closes the database.
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PgxRepository is a ProfileRepository on a pgx pool.
type PgxRepository struct {
	pool *pgxpool.Pool
}

// NewPgxRepository creates a repository over pool.
func NewPgxRepository(pool *pgxpool.Pool) *PgxRepository {
	return &PgxRepository{pool: pool}
}

const createProfilesTable = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id      VARCHAR(128) PRIMARY KEY,
	display_name VARCHAR(100) NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate creates the profiles table if needed.
func (r *PgxRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createProfilesTable); err != nil {
		return fmt.Errorf("failed to migrate profiles: %w", err)
	}
	return nil
}

// FindByID retrieves a profile by user ID.
func (r *PgxRepository) FindByID(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, display_name, created_at, updated_at FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.DisplayName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return &p, nil
}

// Upsert creates or renames a profile.
func (r *PgxRepository) Upsert(ctx context.Context, userID, displayName string) (*Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `
		INSERT INTO profiles (user_id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = now()
		RETURNING user_id, display_name, created_at, updated_at`,
		userID, displayName,
	).Scan(&p.UserID, &p.DisplayName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return &p, nil
}

// Ping checks the pool.
func (r *PgxRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Driver returns the driver name.
func (r *PgxRepository) Driver() string { return "postgres" }

// Close closes the pool.
func (r *PgxRepository) Close() error {
	r.pool.Close()
	return nil
}
