package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/exodetect/internal/config"
	"github.com/example/exodetect/internal/database"
	"github.com/example/exodetect/internal/models"
	"github.com/example/exodetect/internal/routes"
	"github.com/example/exodetect/internal/utils"
)

const testSecret = "test-secret"

// newTestApp spins up the full route tree against an in-memory
// database. OTP dispatch runs in mock mode, so codes are read straight
// from the otps table.
func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		AppEnv:       "test",
		JWTSecret:    testSecret,
		TokenExpires: time.Hour,
	}

	return routes.NewApp(db, cfg, nil), db
}

// doJSON fires a JSON request at the app and decodes the response body
// into a generic map.
func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, token string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	payload := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload), "unexpected body: %s", raw)
	}

	return resp.StatusCode, payload
}

// otpCode fetches the latest code issued to an identifier for a type.
func otpCode(t *testing.T, db *gorm.DB, identifier string, otpType models.OtpType) string {
	t.Helper()

	var otp models.Otp
	require.NoError(t, db.
		Where("identifier = ? AND type = ?", identifier, otpType).
		Order("created_at desc").
		First(&otp).Error)
	return otp.Code
}

// seedUser creates a verified user with a password, past first login.
func seedUser(t *testing.T, db *gorm.DB, email, password string, role models.Role) *models.User {
	t.Helper()

	user := &models.User{Role: role, Email: &email}
	if password != "" {
		hash, err := utils.HashPassword(password)
		require.NoError(t, err)
		user.Password = hash
	}
	require.NoError(t, db.Create(user).Error)

	require.NoError(t, db.Model(user).Updates(map[string]interface{}{
		"is_verified":       true,
		"first_login":       false,
		"profile_completed": true,
	}).Error)
	user.IsVerified = true
	user.FirstLogin = false
	user.ProfileCompleted = true

	return user
}

func authToken(t *testing.T, user *models.User) string {
	t.Helper()

	token, err := utils.GenerateToken(testSecret, user.ID, user.Role, time.Hour)
	require.NoError(t, err)
	return token
}

func get(t *testing.T, app *fiber.App, path, token string) (int, map[string]interface{}) {
	t.Helper()
	return doJSON(t, app, http.MethodGet, path, nil, token)
}

func newAuthedRequest(t *testing.T, method, path, token string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}
