package repository

import (
	"context"
	"testing"
	"time"

	"fundsphere/internal/database"
	"fundsphere/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite database with the full schema. One
// connection keeps the in-memory database shared and serializes writers.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

func seedUser(t *testing.T, db *gorm.DB, username string, role models.Role, createdAt time.Time) *models.User {
	t.Helper()
	user := &models.User{
		Username:  username,
		Email:     username + "@example.com",
		Password:  "hash",
		Role:      role,
		CreatedAt: createdAt,
	}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

func seedCampaign(t *testing.T, db *gorm.DB, owner string, status models.CampaignStatus, deadline *time.Time, createdAt time.Time) *models.Campaign {
	t.Helper()
	campaign := &models.Campaign{
		Title:       "Campaign " + createdAt.Format(time.RFC3339Nano),
		Description: "desc",
		GoalAmount:  1000,
		Deadline:    deadline,
		CreatedBy:   owner,
		Status:      status,
		CreatedAt:   createdAt,
	}
	require.NoError(t, NewCampaignRepository(db).Create(context.Background(), campaign))
	return campaign
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
