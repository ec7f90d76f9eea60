package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/example/exodetect/internal/models"
	"github.com/example/exodetect/internal/utils"
)

// OtpTTL is how long an issued code stays valid.
const OtpTTL = 5 * time.Minute

// resendCooldown throttles reissuing to the same identifier+type when
// Redis is available.
const resendCooldown = 60 * time.Second

// ErrInvalidOtp is the single failure surfaced for a bad code. Wrong
// and expired codes are deliberately indistinguishable to the caller.
var ErrInvalidOtp = errors.New("invalid or expired OTP")

// ErrOtpCooldown is returned when a code was reissued too quickly.
var ErrOtpCooldown = errors.New("an OTP was sent recently, please wait before requesting another")

// OtpService issues and consumes one-time codes. Codes are persisted
// with a TTL, swept per identifier on each new issuance, and deleted
// on first successful use.
type OtpService struct {
	db     *gorm.DB
	mailer *Mailer
	sms    *SMSService
	redis  *redis.Client
}

// NewOtpService wires the OTP store with its dispatch channels. The
// Redis client may be nil, which disables the resend cooldown.
func NewOtpService(db *gorm.DB, mailer *Mailer, sms *SMSService, rdb *redis.Client) *OtpService {
	return &OtpService{db: db, mailer: mailer, sms: sms, redis: rdb}
}

// Issue sweeps expired codes for the identifier, stores a fresh
// 6-digit code with a 5-minute TTL and dispatches it by email or SMS.
// Dispatch failures propagate to the caller and leave no cooldown, so
// the identifier can retry immediately.
func (s *OtpService) Issue(userID uuid.UUID, identifier string, otpType models.OtpType) (*models.Otp, error) {
	if err := s.checkCooldown(identifier, otpType); err != nil {
		return nil, err
	}

	code, err := utils.GenerateOtpCode()
	if err != nil {
		return nil, err
	}

	if err := s.db.Where("identifier = ? AND expires_at < ?", identifier, time.Now()).
		Delete(&models.Otp{}).Error; err != nil {
		return nil, err
	}

	otp := models.Otp{
		UserID:     userID,
		Identifier: identifier,
		Code:       code,
		Type:       otpType,
		ExpiresAt:  time.Now().Add(OtpTTL),
	}

	if err := s.db.Create(&otp).Error; err != nil {
		return nil, err
	}

	if err := s.dispatch(identifier, code, otpType); err != nil {
		return nil, err
	}

	s.markCooldown(identifier, otpType)
	return &otp, nil
}

// Consume looks up a live code and deletes it on match. Misses of any
// kind fail with ErrInvalidOtp.
func (s *OtpService) Consume(identifier, code string, otpType models.OtpType) (*models.Otp, error) {
	return ConsumeIn(s.db, identifier, code, otpType)
}

// ConsumeIn is Consume running on a caller-supplied handle, so flows
// that must flip state and burn the code atomically can pass their
// transaction.
func ConsumeIn(db *gorm.DB, identifier, code string, otpType models.OtpType) (*models.Otp, error) {
	var otp models.Otp
	err := db.Where("identifier = ? AND code = ? AND type = ? AND expires_at > ?",
		identifier, code, otpType, time.Now()).First(&otp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidOtp
		}
		return nil, err
	}

	if err := db.Delete(&models.Otp{}, "id = ?", otp.ID).Error; err != nil {
		return nil, err
	}

	return &otp, nil
}

func (s *OtpService) dispatch(identifier, code string, otpType models.OtpType) error {
	purpose := strings.ReplaceAll(string(otpType), "_", " ")
	if utils.IsEmail(identifier) {
		return s.mailer.SendOtp(identifier, code, purpose)
	}
	return s.sms.SendOtp(identifier, code)
}

func (s *OtpService) checkCooldown(identifier string, otpType models.OtpType) error {
	if s.redis == nil {
		return nil
	}

	n, err := s.redis.Exists(context.Background(), cooldownKey(identifier, otpType)).Result()
	if err != nil {
		// Cooldown is an optimization; a Redis outage must not block OTPs.
		log.Printf("[otp] cooldown check failed: %v", err)
		return nil
	}
	if n > 0 {
		return ErrOtpCooldown
	}
	return nil
}

// markCooldown starts the resend window. It runs only after a
// successful dispatch so failed sends stay retryable.
func (s *OtpService) markCooldown(identifier string, otpType models.OtpType) {
	if s.redis == nil {
		return
	}

	err := s.redis.Set(context.Background(), cooldownKey(identifier, otpType), 1, resendCooldown).Err()
	if err != nil {
		log.Printf("[otp] cooldown set failed: %v", err)
	}
}

func cooldownKey(identifier string, otpType models.OtpType) string {
	return fmt.Sprintf("otp:cooldown:%s:%s", otpType, identifier)
}
