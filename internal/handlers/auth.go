package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/exodetect/internal/config"
	"github.com/example/exodetect/internal/models"
	"github.com/example/exodetect/internal/services"
	"github.com/example/exodetect/internal/utils"
)

// AuthHandler drives the OTP-gated registration, login and password
// recovery workflows. Each route group passes its role so /user and
// /other stay mirrored.
type AuthHandler struct {
	db  *gorm.DB
	cfg *config.Config
	otp *services.OtpService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, otp *services.OtpService) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, otp: otp}
}

type identifierRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (r *identifierRequest) validate() (string, error) {
	if r.Email == "" && r.Phone == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "email or phone is required")
	}
	if r.Email != "" && !utils.ValidEmail(r.Email) {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid email format")
	}
	if r.Phone != "" && !utils.ValidPhone(r.Phone) {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid phone format")
	}
	if r.Email != "" {
		return r.Email, nil
	}
	return r.Phone, nil
}

// identifierQuery narrows a user query to whichever identifiers the
// request carried.
func identifierQuery(db *gorm.DB, email, phone string) *gorm.DB {
	switch {
	case email != "" && phone != "":
		return db.Where("email = ? OR phone = ?", email, phone)
	case email != "":
		return db.Where("email = ?", email)
	default:
		return db.Where("phone = ?", phone)
	}
}

func issueOtpError(err error) error {
	if errors.Is(err, services.ErrOtpCooldown) {
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	}
	return err
}

// Register starts registration: it creates (or reuses) an unverified
// user holding the identifier and dispatches a VERIFICATION OTP.
// Reusing an abandoned unverified row keeps a retry from tripping the
// uniqueness constraint.
func (h *AuthHandler) Register(role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req identifierRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		identifier, err := req.validate()
		if err != nil {
			return err
		}

		var existing models.User
		err = identifierQuery(h.db, req.Email, req.Phone).First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var user models.User
		if err == nil {
			if existing.IsDeleted {
				return fiber.NewError(fiber.StatusConflict,
					"this identifier is reserved by a deleted account")
			}
			if existing.IsVerified {
				return fiber.NewError(fiber.StatusConflict,
					"user already exists and is verified, please login instead")
			}

			if err := h.db.Model(&existing).Update("role", role).Error; err != nil {
				return err
			}
			existing.Role = role
			user = existing
		} else {
			user = models.User{Role: role, FirstLogin: true}
			if req.Email != "" {
				user.Email = &req.Email
			}
			if req.Phone != "" {
				user.Phone = &req.Phone
			}
			if err := h.db.Create(&user).Error; err != nil {
				return err
			}
		}

		if _, err := h.otp.Issue(user.ID, identifier, models.OtpVerification); err != nil {
			return issueOtpError(err)
		}

		return c.JSON(fiber.Map{
			"success":    true,
			"message":    "OTP sent successfully, please check your email or phone",
			"user_id":    user.ID,
			"identifier": utils.MaskIdentifier(identifier),
		})
	}
}

type verifyOtpRequest struct {
	Email string         `json:"email"`
	Phone string         `json:"phone"`
	Otp   string         `json:"otp"`
	Type  models.OtpType `json:"type"`
}

// VerifyOtp consumes a pending code. For VERIFICATION it reports which
// registration steps remain; for PASSWORD_RESET it mints the
// single-use reset token the reset-password call requires.
func (h *AuthHandler) VerifyOtp(c *fiber.Ctx) error {
	var req verifyOtpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Otp == "" {
		return fiber.NewError(fiber.StatusBadRequest, "OTP is required")
	}

	identifier := req.Email
	if identifier == "" {
		identifier = req.Phone
	}
	if identifier == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email or phone is required")
	}

	if req.Type == "" {
		req.Type = models.OtpVerification
	}

	otp, err := h.otp.Consume(identifier, req.Otp, req.Type)
	if err != nil {
		if errors.Is(err, services.ErrInvalidOtp) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid or expired OTP")
		}
		return err
	}

	updates := map[string]interface{}{"is_otp_verified": true}
	if req.Type == models.OtpAccountDeletion {
		updates["is_delete_verified"] = true
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", otp.UserID).Error; err != nil {
		return err
	}
	if err := h.db.Model(&user).Updates(updates).Error; err != nil {
		return err
	}

	resp := fiber.Map{
		"success": true,
		"message": "OTP verified successfully",
		"user_id": user.ID,
	}

	if req.Type == models.OtpVerification {
		resp["requires_password"] = !user.HasPassword()
		resp["requires_profile"] = user.FirstLogin
	}

	if req.Type == models.OtpPasswordReset {
		token, err := h.mintResetToken(user.ID)
		if err != nil {
			return err
		}
		resp["reset_token"] = token
	}

	return c.JSON(resp)
}

func (h *AuthHandler) mintResetToken(userID uuid.UUID) (string, error) {
	token, err := utils.GenerateResetToken()
	if err != nil {
		return "", err
	}

	record := models.PasswordResetToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
	if err := h.db.Create(&record).Error; err != nil {
		return "", err
	}

	return token, nil
}

type completeRegistrationRequest struct {
	UserID          string `json:"user_id"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Name            string `json:"name"`
	Age             *int   `json:"age"`
	Gender          string `json:"gender"`
	Dob             string `json:"dob"`
	Bio             string `json:"bio"`
	ProfileImage    string `json:"profile_image"`
}

// CompleteRegistration finishes sign-up after OTP verification:
// optionally sets a password and profile fields, marks the account
// verified and clears the first-login flag.
func (h *AuthHandler) CompleteRegistration(c *fiber.Ctx) error {
	var req completeRegistrationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.UserID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user ID is required")
	}

	if req.Password != "" {
		if req.Password != req.ConfirmPassword {
			return fiber.NewError(fiber.StatusBadRequest, "passwords do not match")
		}
		if len(req.Password) < 6 {
			return fiber.NewError(fiber.StatusBadRequest, "password must be at least 6 characters long")
		}
	}

	var user models.User
	err := h.db.Where("id = ? AND is_otp_verified = ? AND is_deleted = ?", req.UserID, true, false).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user not found or OTP not verified")
		}
		return err
	}

	profileComplete := req.Name != "" && req.Age != nil && req.Gender != ""

	updates := map[string]interface{}{
		"is_verified":       true,
		"first_login":       false,
		"profile_completed": profileComplete,
	}
	applyProfileFields(updates, req.Name, req.Age, req.Gender, req.Dob, req.Bio, req.ProfileImage)

	if req.Password != "" {
		hash, err := utils.HashPassword(req.Password)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
		}
		updates["password"] = hash
	}

	if err := h.db.Model(&user).Updates(updates).Error; err != nil {
		return err
	}

	if err := h.db.First(&user, "id = ?", user.ID).Error; err != nil {
		return err
	}

	message := "registration completed successfully"
	if !profileComplete {
		message = "basic registration complete, please complete your profile"
	}

	return c.JSON(fiber.Map{
		"success":          true,
		"message":          message,
		"user":             user,
		"requires_profile": !profileComplete,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Login authenticates a verified user of the matching role and issues
// a JWT.
func (h *AuthHandler) Login(role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req loginRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		if req.Email == "" && req.Phone == "" {
			return fiber.NewError(fiber.StatusBadRequest, "email or phone is required")
		}

		var user models.User
		err := identifierQuery(h.db, req.Email, req.Phone).
			Where("is_deleted = ? AND is_verified = ? AND role = ?", false, true, role).
			Preload("LinkedAccounts").
			First(&user).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "user not found or not verified")
			}
			return err
		}

		if !user.HasPassword() {
			return fiber.NewError(fiber.StatusBadRequest, "please set a password for your account first")
		}

		if !utils.CheckPassword(user.Password, req.Password) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}

		if user.FirstLogin {
			if err := h.db.Model(&user).Update("first_login", false).Error; err != nil {
				return err
			}
			user.FirstLogin = false
		}

		token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, user.Role, h.cfg.TokenExpires)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
		}

		return c.JSON(fiber.Map{
			"success":          true,
			"message":          "login successful",
			"token":            token,
			"user":             user,
			"requires_profile": !user.ProfileCompleted,
		})
	}
}

// ForgotPassword issues a PASSWORD_RESET OTP to an existing,
// non-deleted user. The lookup is deliberately not gated on
// verification state.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req identifierRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Email == "" && req.Phone == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email or phone is required")
	}
	identifier := req.Email
	if identifier == "" {
		identifier = req.Phone
	}

	var user models.User
	err := identifierQuery(h.db, req.Email, req.Phone).
		Where("is_deleted = ?", false).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return err
	}

	if _, err := h.otp.Issue(user.ID, identifier, models.OtpPasswordReset); err != nil {
		return issueOtpError(err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "OTP sent for password reset",
		"user_id":    user.ID,
		"identifier": utils.MaskIdentifier(identifier),
	})
}

type resetPasswordRequest struct {
	ResetToken      string `json:"reset_token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ResetPassword sets a new password against a single-use reset token
// minted by a PASSWORD_RESET OTP verification.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.ResetToken == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		return fiber.NewError(fiber.StatusBadRequest, "all fields are required")
	}
	if req.NewPassword != req.ConfirmPassword {
		return fiber.NewError(fiber.StatusBadRequest, "new passwords do not match")
	}
	if len(req.NewPassword) < 6 {
		return fiber.NewError(fiber.StatusBadRequest, "password must be at least 6 characters long")
	}

	var record models.PasswordResetToken
	if err := h.db.Where("token = ?", req.ResetToken).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "invalid reset token")
		}
		return err
	}

	if record.UsedAt != nil {
		return fiber.NewError(fiber.StatusBadRequest, "reset token already used")
	}
	if record.ExpiresAt.Before(time.Now()) {
		return fiber.NewError(fiber.StatusBadRequest, "reset token expired")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", record.UserID).
			Updates(map[string]interface{}{
				"password":        hash,
				"is_otp_verified": false,
			}).Error; err != nil {
			return err
		}

		now := time.Now()
		return tx.Model(&record).Update("used_at", &now).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "password reset successfully",
	})
}

// applyProfileFields copies the optional profile attributes into an
// update map, normalizing gender casing and parsing the dob.
func applyProfileFields(updates map[string]interface{}, name string, age *int, gender, dob, bio, profileImage string) {
	if name != "" {
		updates["name"] = name
	}
	if age != nil {
		updates["age"] = *age
	}
	if gender != "" {
		updates["gender"] = normalizeGender(gender)
	}
	if dob != "" {
		if parsed, err := parseDate(dob); err == nil {
			updates["dob"] = parsed
		}
	}
	if bio != "" {
		updates["bio"] = bio
	}
	if profileImage != "" {
		updates["profile_image"] = profileImage
	}
}

func parseDate(value string) (time.Time, error) {
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, value)
}
