package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/exodetect/internal/middleware"
	"github.com/example/exodetect/internal/models"
	"github.com/example/exodetect/internal/services"
	"github.com/example/exodetect/internal/utils"
)

// AccountHandler covers the OTP-gated sensitive operations: password
// change and account deletion. Both follow the same two-step shape —
// request an operation-typed OTP, then perform the mutation with the
// code.
type AccountHandler struct {
	db  *gorm.DB
	otp *services.OtpService
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(db *gorm.DB, otp *services.OtpService) *AccountHandler {
	return &AccountHandler{db: db, otp: otp}
}

type operationOtpRequest struct {
	Operation models.OtpType `json:"operation"`
}

// SendOperationOtp issues an OTP typed by the requested operation to
// the user's current primary identifier.
func (h *AccountHandler) SendOperationOtp(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req operationOtpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if !models.OperationOtpTypes[req.Operation] {
		return fiber.NewError(fiber.StatusBadRequest, "unsupported operation")
	}

	identifier := user.Identifier()
	if identifier == "" {
		return fiber.NewError(fiber.StatusBadRequest,
			"no email or phone associated with account for OTP verification")
	}

	if _, err := h.otp.Issue(user.ID, identifier, req.Operation); err != nil {
		return issueOtpError(err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "OTP sent successfully for verification",
		"operation":  req.Operation,
		"identifier": utils.MaskIdentifier(identifier),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
	Otp             string `json:"otp"`
}

// ChangePassword requires the current password and a live
// PASSWORD_CHANGE OTP; the code burns inside the same transaction that
// writes the new hash.
func (h *AccountHandler) ChangePassword(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.CurrentPassword == "" || req.NewPassword == "" || req.ConfirmPassword == "" || req.Otp == "" {
		return fiber.NewError(fiber.StatusBadRequest, "all fields including OTP are required")
	}
	if req.NewPassword != req.ConfirmPassword {
		return fiber.NewError(fiber.StatusBadRequest, "new passwords do not match")
	}
	if len(req.NewPassword) < 6 {
		return fiber.NewError(fiber.StatusBadRequest, "new password must be at least 6 characters long")
	}

	if !utils.CheckPassword(user.Password, req.CurrentPassword) {
		return fiber.NewError(fiber.StatusUnauthorized, "current password is incorrect")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	identifier := user.Identifier()
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if _, err := services.ConsumeIn(tx, identifier, req.Otp, models.OtpPasswordChange); err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("password", hash).Error
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidOtp) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid or expired OTP for password change")
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "password changed successfully",
	})
}

// RequestDeletion sends an ACCOUNT_DELETION OTP to the user's primary
// identifier.
func (h *AccountHandler) RequestDeletion(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	identifier := user.Identifier()
	if identifier == "" {
		return fiber.NewError(fiber.StatusBadRequest,
			"no email or phone associated with account for OTP verification")
	}

	if _, err := h.otp.Issue(user.ID, identifier, models.OtpAccountDeletion); err != nil {
		return issueOtpError(err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"message":      "OTP sent for account deletion verification, please verify to proceed",
		"requires_otp": true,
	})
}

type deleteAccountRequest struct {
	Otp string `json:"otp"`
}

// DeleteAccount soft-deletes the user after OTP verification: one
// transaction wipes the user's OTP, address and linked-account rows
// and flips the deleted flag. The user row itself stays.
func (h *AccountHandler) DeleteAccount(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req deleteAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Otp == "" {
		return fiber.NewError(fiber.StatusBadRequest, "OTP is required to delete the account")
	}

	identifier := user.Identifier()
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if _, err := services.ConsumeIn(tx, identifier, req.Otp, models.OtpAccountDeletion); err != nil {
			return err
		}

		if err := tx.Where("user_id = ?", user.ID).Delete(&models.Otp{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.Address{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.LinkedAccount{}).Error; err != nil {
			return err
		}

		return tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("is_deleted", true).Error
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidOtp) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid or expired OTP for account deletion")
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "account deleted successfully",
	})
}
