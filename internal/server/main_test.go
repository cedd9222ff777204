package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fundsphere/internal/config"
	"fundsphere/internal/database"
	"fundsphere/internal/media"
	"fundsphere/internal/middleware"
	"fundsphere/internal/models"
	"fundsphere/internal/repository"
	"fundsphere/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

const testPassword = "Str0ng!Password"

type testEnv struct {
	srv       *Server
	app       *fiber.App
	db        *gorm.DB
	clock     *testutil.FixedClock
	uploadDir string
	redis     *miniredis.Miniredis
}

// newTestEnv builds a server over in-memory SQLite, a temp upload directory
// and miniredis.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := testutil.NewFixedClock(testNow)
	uploadDir := t.TempDir()
	store, err := media.NewLocalStore(uploadDir, "/uploads")
	require.NoError(t, err)
	ingestor, err := media.NewIngestor(store, media.Options{MaxBytes: 1 << 20, Workers: 2, Now: clock.Now})
	require.NoError(t, err)
	t.Cleanup(ingestor.Close)

	srv, err := NewServer(Deps{
		Config: &config.Config{
			JWTSecret:         "test-secret",
			Port:              "0",
			Env:               "test",
			SessionTTL:        time.Hour,
			PublishedCacheTTL: time.Minute,
			MediaMaxUploadMB:  1,
			FeatureFlags:      "listing_v2=on,strict_milestones=off",
		},
		Stores:    repository.NewGormStores(db),
		Redis:     rdb,
		Ingestor:  ingestor,
		UploadDir: uploadDir,
		Clock:     clock,
		HashCost:  bcrypt.MinCost,
	})
	require.NoError(t, err)

	return &testEnv{srv: srv, app: srv.App(), db: db, clock: clock, uploadDir: uploadDir, redis: mr}
}

// seedUser stores a user directly and returns it with a session token.
func (e *testEnv) seedUser(t *testing.T, username string, role models.Role) (*models.User, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: string(hash),
		Role:     role,
		UserType: models.NewUserTypes(models.UserTypeCreator),
	}
	require.NoError(t, e.srv.stores.Users.Create(context.Background(), user))

	token, _, err := e.srv.tokens.Issue(user.ID)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) request(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// call performs a request and decodes the JSON object it returns.
func (e *testEnv) call(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()
	resp := e.request(t, method, path, body, token)
	return resp.StatusCode, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	return nil
}

func campaignIDs(t *testing.T, body map[string]any) []string {
	t.Helper()
	list, ok := body["campaigns"].([]any)
	require.True(t, ok, "campaigns missing from %v", body)
	ids := make([]string, 0, len(list))
	for _, item := range list {
		ids = append(ids, item.(map[string]any)["id"].(string))
	}
	return ids
}
