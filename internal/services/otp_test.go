package services

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/exodetect/internal/config"
	"github.com/example/exodetect/internal/database"
	"github.com/example/exodetect/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestOtpService(t *testing.T) (*OtpService, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)

	// Empty credentials put both channels in mock mode, so nothing
	// leaves the process during tests.
	mailer := NewMailer(&config.Config{})
	sms := NewSMSService("", "", "", "")

	return NewOtpService(db, mailer, sms, nil), db
}

func TestOtpIssueAndConsume(t *testing.T) {
	svc, _ := newTestOtpService(t)

	userID := uuid.New()
	otp, err := svc.Issue(userID, "user@example.com", models.OtpVerification)
	require.NoError(t, err)
	require.Len(t, otp.Code, 6)
	assert.WithinDuration(t, time.Now().Add(OtpTTL), otp.ExpiresAt, 5*time.Second)

	consumed, err := svc.Consume("user@example.com", otp.Code, models.OtpVerification)
	require.NoError(t, err)
	assert.Equal(t, userID, consumed.UserID)
}

func TestOtpSingleUse(t *testing.T) {
	svc, _ := newTestOtpService(t)

	otp, err := svc.Issue(uuid.New(), "user@example.com", models.OtpVerification)
	require.NoError(t, err)

	_, err = svc.Consume("user@example.com", otp.Code, models.OtpVerification)
	require.NoError(t, err)

	_, err = svc.Consume("user@example.com", otp.Code, models.OtpVerification)
	assert.ErrorIs(t, err, ErrInvalidOtp)
}

func TestOtpWrongCodeOrType(t *testing.T) {
	svc, _ := newTestOtpService(t)

	otp, err := svc.Issue(uuid.New(), "user@example.com", models.OtpPasswordChange)
	require.NoError(t, err)

	_, err = svc.Consume("user@example.com", "000000", models.OtpPasswordChange)
	assert.ErrorIs(t, err, ErrInvalidOtp)

	// Right code, wrong intent.
	_, err = svc.Consume("user@example.com", otp.Code, models.OtpVerification)
	assert.ErrorIs(t, err, ErrInvalidOtp)

	// The code survives failed attempts.
	_, err = svc.Consume("user@example.com", otp.Code, models.OtpPasswordChange)
	assert.NoError(t, err)
}

func TestOtpExpiry(t *testing.T) {
	svc, db := newTestOtpService(t)

	otp, err := svc.Issue(uuid.New(), "user@example.com", models.OtpVerification)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Otp{}).Where("id = ?", otp.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, err = svc.Consume("user@example.com", otp.Code, models.OtpVerification)
	assert.ErrorIs(t, err, ErrInvalidOtp)
}

func TestOtpCooldownStartsOnSuccessfulDispatchOnly(t *testing.T) {
	db := newTestDB(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	var gatewayDown atomic.Bool
	gatewayDown.Store(true)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gatewayDown.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer gateway.Close()

	sms := NewSMSService(gateway.URL, "sid", "token", "+10000000000")
	svc := NewOtpService(db, NewMailer(&config.Config{}), sms, rdb)

	phone := "+998901234567"
	userID := uuid.New()

	_, err := svc.Issue(userID, phone, models.OtpVerification)
	require.Error(t, err, "gateway is down")

	// A failed dispatch must not start the cooldown.
	gatewayDown.Store(false)
	_, err = svc.Issue(userID, phone, models.OtpVerification)
	require.NoError(t, err)

	// A delivered code does.
	_, err = svc.Issue(userID, phone, models.OtpVerification)
	assert.ErrorIs(t, err, ErrOtpCooldown)

	// The window expires on its own.
	mr.FastForward(resendCooldown + time.Second)
	_, err = svc.Issue(userID, phone, models.OtpVerification)
	assert.NoError(t, err)
}

func TestOtpIssueSweepsExpired(t *testing.T) {
	svc, db := newTestOtpService(t)

	stale, err := svc.Issue(uuid.New(), "user@example.com", models.OtpVerification)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Otp{}).Where("id = ?", stale.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, err = svc.Issue(uuid.New(), "user@example.com", models.OtpVerification)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Otp{}).
		Where("identifier = ?", "user@example.com").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
