package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/exodetect/internal/middleware"
	"github.com/example/exodetect/internal/models"
)

// Custom model training is mocked end to end; the records exist so
// users can group predictions under a named feature schema.

type customModelRequest struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Features json.RawMessage `json:"features"`
}

// CreateCustomModel registers a named model with its feature schema.
func (h *MLHandler) CreateCustomModel(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req customModelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "model name is required")
	}
	if len(req.Features) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "at least one feature is required")
	}

	model := models.CustomModel{
		UserID:   user.ID,
		Name:     req.Name,
		Features: req.Features,
		Status:   "READY",
	}
	if err := h.db.Create(&model).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "custom model created successfully",
		"model":   model,
	})
}

// ListCustomModels returns the user's custom models, newest first.
func (h *MLHandler) ListCustomModels(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var customModels []models.CustomModel
	err := h.db.Where("user_id = ?", user.ID).Order("created_at desc").Find(&customModels).Error
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"models":  customModels,
	})
}

// UpdateCustomModel renames a model or replaces its feature schema.
func (h *MLHandler) UpdateCustomModel(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req customModelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	modelID, err := uuid.Parse(req.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid model ID")
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if len(req.Features) != 0 {
		updates["features"] = []byte(req.Features)
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}

	result := h.db.Model(&models.CustomModel{}).
		Where("id = ? AND user_id = ?", modelID, user.ID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "custom model not found")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "custom model updated successfully",
	})
}

type deleteCustomModelRequest struct {
	ID string `json:"id"`
}

// DeleteCustomModel removes a model together with its prediction
// history.
func (h *MLHandler) DeleteCustomModel(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req deleteCustomModelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	modelID, err := uuid.Parse(req.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid model ID")
	}

	var model models.CustomModel
	err = h.db.Where("id = ? AND user_id = ?", modelID, user.ID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "custom model not found")
		}
		return err
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("custom_model_id = ?", model.ID).
			Delete(&models.CustomModelEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "custom model deleted successfully",
	})
}

type predictCustomRequest struct {
	CustomModelID string          `json:"custom_model_id"`
	Data          json.RawMessage `json:"data"`
}

// PredictCustom runs a (mocked) prediction with a custom model and
// stores the result under it.
func (h *MLHandler) PredictCustom(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req predictCustomRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	modelID, err := uuid.Parse(req.CustomModelID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid model ID")
	}

	var model models.CustomModel
	err = h.db.Where("id = ? AND user_id = ?", modelID, user.ID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "custom model not found")
		}
		return err
	}

	var features map[string]any
	if err := json.Unmarshal(req.Data, &features); err != nil || len(features) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "at least one feature is required for custom model")
	}

	prediction, err := h.predictor.Predict("custom", features)
	if err != nil {
		return err
	}

	blob, err := marshalEntry("custom", prediction, false)
	if err != nil {
		return err
	}

	entry := models.CustomModelEntry{CustomModelID: model.ID, Data: blob}
	if err := h.db.Create(&entry).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "custom model prediction completed successfully",
		"data":       fiber.Map{"prediction": prediction},
		"model_name": model.Name,
	})
}
