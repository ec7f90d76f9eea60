package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/exodetect/internal/middleware"
	"github.com/example/exodetect/internal/models"
)

// ProfileHandler manages profile reads and updates.
type ProfileHandler struct {
	db *gorm.DB
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{db: db}
}

// GetProfile returns the authenticated user with addresses and linked
// accounts.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	current, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var user models.User
	err := h.db.Preload("Addresses").Preload("LinkedAccounts").
		First(&user, "id = ?", current.ID).Error
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":          true,
		"user":             user,
		"requires_profile": !user.ProfileCompleted && user.FirstLogin,
	})
}

type addressRequest struct {
	Label       string `json:"label"`
	AddressLine string `json:"address_line"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
	PostalCode  string `json:"postal_code"`
	IsDefault   bool   `json:"is_default"`
}

type updateProfileRequest struct {
	Name         *string           `json:"name"`
	Age          *int              `json:"age"`
	Gender       *string           `json:"gender"`
	Dob          *string           `json:"dob"`
	Bio          *string           `json:"bio"`
	ProfileImage *string           `json:"profile_image"`
	Addresses    *[]addressRequest `json:"addresses"`
}

// UpdateProfile applies a partial profile update. Completeness is
// recomputed against the merged state, and when addresses are present
// the whole set is replaced inside one transaction.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	current, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Age != nil {
		updates["age"] = *req.Age
	}
	if req.Gender != nil {
		updates["gender"] = normalizeGender(*req.Gender)
	}
	if req.Dob != nil {
		if parsed, err := parseDate(*req.Dob); err == nil {
			updates["dob"] = parsed
		}
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.ProfileImage != nil {
		updates["profile_image"] = *req.ProfileImage
	}

	name := current.Name
	if req.Name != nil {
		name = *req.Name
	}
	age := current.Age
	if req.Age != nil {
		age = req.Age
	}
	gender := current.Gender
	if req.Gender != nil {
		gender = *req.Gender
	}

	profileComplete := name != "" && age != nil && gender != ""
	if profileComplete {
		updates["profile_completed"] = true
		updates["first_login"] = false
	}
	updates["updated_at"] = time.Now()

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", current.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		if req.Addresses == nil {
			return nil
		}

		if err := tx.Where("user_id = ?", current.ID).Delete(&models.Address{}).Error; err != nil {
			return err
		}

		for _, addr := range *req.Addresses {
			record := models.Address{
				UserID:      current.ID,
				Label:       addr.Label,
				AddressLine: addr.AddressLine,
				City:        addr.City,
				State:       addr.State,
				Country:     addr.Country,
				PostalCode:  addr.PostalCode,
				IsDefault:   addr.IsDefault,
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var user models.User
	if err := h.db.Preload("Addresses").First(&user, "id = ?", current.ID).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":           true,
		"message":           "profile updated successfully",
		"user":              user,
		"profile_completed": profileComplete,
	})
}

func normalizeGender(gender string) string {
	return strings.ToUpper(strings.TrimSpace(gender))
}
