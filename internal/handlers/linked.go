package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/exodetect/internal/middleware"
	"github.com/example/exodetect/internal/models"
	"github.com/example/exodetect/internal/services"
)

// LinkedAccountHandler manages secondary identifiers: linking,
// verification and promotion to primary.
type LinkedAccountHandler struct {
	db  *gorm.DB
	otp *services.OtpService
}

// NewLinkedAccountHandler constructs a LinkedAccountHandler.
func NewLinkedAccountHandler(db *gorm.DB, otp *services.OtpService) *LinkedAccountHandler {
	return &LinkedAccountHandler{db: db, otp: otp}
}

// List returns the user's linked accounts, newest first.
func (h *LinkedAccountHandler) List(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var accounts []models.LinkedAccount
	err := h.db.Where("user_id = ?", user.ID).Order("created_at desc").Find(&accounts).Error
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"linked_accounts": accounts,
	})
}

// Link creates a PENDING linked account and sends an ACCOUNT_LINKING
// OTP to the identifier being claimed, not to the user's current one.
func (h *LinkedAccountHandler) Link(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req identifierRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	identifier, err := req.validate()
	if err != nil {
		return err
	}

	var existing models.LinkedAccount
	err = h.db.Where("user_id = ? AND status = ? AND (email = ? OR phone = ?)",
		user.ID, models.LinkedVerified, req.Email, req.Phone).First(&existing).Error
	if err == nil {
		return fiber.NewError(fiber.StatusBadRequest, "account already linked")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	account := models.LinkedAccount{
		UserID: user.ID,
		Status: models.LinkedPending,
	}
	if req.Email != "" {
		account.Email = &req.Email
		account.Type = models.LinkedEmail
	} else {
		account.Phone = &req.Phone
		account.Type = models.LinkedPhone
	}

	if err := h.db.Create(&account).Error; err != nil {
		return err
	}

	if _, err := h.otp.Issue(user.ID, identifier, models.OtpAccountLinking); err != nil {
		return issueOtpError(err)
	}

	return c.JSON(fiber.Map{
		"success":           true,
		"message":           "OTP sent for account linking verification",
		"linked_account_id": account.ID,
	})
}

type verifyLinkedRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	Otp   string `json:"otp"`
}

// Verify consumes the linking OTP and flips the pending account to
// VERIFIED in one transaction.
func (h *LinkedAccountHandler) Verify(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req verifyLinkedRequest
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

	var account models.LinkedAccount
	err := h.db.Where("user_id = ? AND status = ? AND (email = ? OR phone = ?)",
		user.ID, models.LinkedPending, req.Email, req.Phone).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "pending linked account not found")
		}
		return err
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if _, err := services.ConsumeIn(tx, identifier, req.Otp, models.OtpAccountLinking); err != nil {
			return err
		}

		now := time.Now()
		return tx.Model(&account).Updates(map[string]interface{}{
			"status":      models.LinkedVerified,
			"verified_at": &now,
		}).Error
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidOtp) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid or expired OTP")
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "account linked successfully",
	})
}

type makePrimaryRequest struct {
	LinkedAccountID string `json:"linked_account_id"`
}

// MakePrimary promotes a verified linked account by swapping its
// identifier with the user's primary field of the same kind. No
// re-verification runs; applying the same swap twice restores the
// original assignment.
func (h *LinkedAccountHandler) MakePrimary(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req makePrimaryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	accountID, err := uuid.Parse(req.LinkedAccountID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid linked account ID")
	}

	var account models.LinkedAccount
	err = h.db.Where("id = ? AND user_id = ? AND status = ?",
		accountID, user.ID, models.LinkedVerified).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "verified linked account not found")
		}
		return err
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		switch account.Type {
		case models.LinkedEmail:
			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
				Update("email", account.Email).Error; err != nil {
				return err
			}
			return tx.Model(&account).Update("email", user.Email).Error
		case models.LinkedPhone:
			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
				Update("phone", account.Phone).Error; err != nil {
				return err
			}
			return tx.Model(&account).Update("phone", user.Phone).Error
		default:
			return fiber.NewError(fiber.StatusInternalServerError, "unknown linked account type")
		}
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "primary account updated successfully",
	})
}

// Remove deletes a linked account owned by the user.
func (h *LinkedAccountHandler) Remove(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid linked account ID")
	}

	var account models.LinkedAccount
	err = h.db.Where("id = ? AND user_id = ?", accountID, user.ID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "linked account not found")
		}
		return err
	}

	if err := h.db.Delete(&account).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "linked account removed successfully",
	})
}
