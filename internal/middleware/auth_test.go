package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/exodetect/internal/config"
	"github.com/example/exodetect/internal/database"
	"github.com/example/exodetect/internal/middleware"
	"github.com/example/exodetect/internal/models"
	"github.com/example/exodetect/internal/utils"
)

func newAuthTestApp(t *testing.T) (*fiber.App, *gorm.DB, *config.Config) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{JWTSecret: "auth-test-secret", TokenExpires: time.Hour}

	app := fiber.New()
	app.Get("/protected", middleware.AuthMiddleware(db, cfg), func(c *fiber.Ctx) error {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.JSON(fiber.Map{"id": user.ID})
	})

	return app, db, cfg
}

func request(t *testing.T, app *fiber.App, header string) int {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestAuthMiddleware(t *testing.T) {
	app, db, cfg := newAuthTestApp(t)

	email := "guarded@example.com"
	user := models.User{Email: &email}
	require.NoError(t, db.Create(&user).Error)

	token, err := utils.GenerateToken(cfg.JWTSecret, user.ID, models.RoleUser, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, request(t, app, "Bearer "+token))
	assert.Equal(t, http.StatusUnauthorized, request(t, app, ""))
	assert.Equal(t, http.StatusUnauthorized, request(t, app, "Basic abc"))
	assert.Equal(t, http.StatusForbidden, request(t, app, "Bearer not-a-token"))
}

func TestAuthMiddlewareRejectsDeletedUser(t *testing.T) {
	app, db, cfg := newAuthTestApp(t)

	email := "erased@example.com"
	user := models.User{Email: &email}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Model(&user).Update("is_deleted", true).Error)

	token, err := utils.GenerateToken(cfg.JWTSecret, user.ID, models.RoleUser, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, request(t, app, "Bearer "+token))
}

func TestAuthMiddlewareRejectsExpiredToken(t *testing.T) {
	app, db, cfg := newAuthTestApp(t)

	email := "late@example.com"
	user := models.User{Email: &email}
	require.NoError(t, db.Create(&user).Error)

	token, err := utils.GenerateToken(cfg.JWTSecret, user.ID, models.RoleUser, -time.Minute)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, request(t, app, "Bearer "+token))
}
