package handlers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/exodetect/internal/middleware"
	"github.com/example/exodetect/internal/models"
	"github.com/example/exodetect/internal/services"
	"github.com/example/exodetect/internal/utils"
)

// requiredFeatures lists the minimum feature set each pretrained model
// expects in an input map.
var requiredFeatures = map[string][]string{
	"toi": {"pl_orbper", "pl_trandurh", "pl_trandep", "pl_rade"},
	"koi": {"koi_impact", "koi_duration", "koi_depth", "koi_teq"},
	"k2":  {"pl_rade", "pl_bmasse", "pl_insol"},
}

// MLHandler proxies prediction requests and manages the per-user
// prediction history and custom model records.
type MLHandler struct {
	db        *gorm.DB
	predictor *services.Predictor
}

// NewMLHandler constructs an MLHandler.
func NewMLHandler(db *gorm.DB, predictor *services.Predictor) *MLHandler {
	return &MLHandler{db: db, predictor: predictor}
}

// entryMetadata is the bookkeeping stored next to each prediction.
type entryMetadata struct {
	ModelType      string    `json:"model_type"`
	Timestamp      time.Time `json:"timestamp"`
	PredictedClass string    `json:"predicted_class"`
	Confidence     float64   `json:"confidence"`
	IsBulk         bool      `json:"is_bulk"`
	IsMock         bool      `json:"is_mock"`
}

// entryPayload is the JSON blob persisted per prediction.
type entryPayload struct {
	Input    map[string]any       `json:"input"`
	Output   *services.Prediction `json:"output"`
	Metadata entryMetadata        `json:"metadata"`
}

// entryRow is the common column shape of every entry table, used for
// reads so listing code stays model-agnostic.
type entryRow struct {
	ID        uuid.UUID       `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// entryScope returns a query scoped to the entry table for modelType.
func (h *MLHandler) entryScope(modelType string) (*gorm.DB, bool) {
	switch strings.ToLower(modelType) {
	case "toi":
		return h.db.Model(&models.TOIEntry{}), true
	case "koi":
		return h.db.Model(&models.KOIEntry{}), true
	case "k2":
		return h.db.Model(&models.K2Entry{}), true
	default:
		return nil, false
	}
}

func (h *MLHandler) storeEntry(modelType string, userID uuid.UUID, data json.RawMessage) error {
	switch strings.ToLower(modelType) {
	case "toi":
		return h.db.Create(&models.TOIEntry{UserID: userID, Data: data}).Error
	case "koi":
		return h.db.Create(&models.KOIEntry{UserID: userID, Data: data}).Error
	case "k2":
		return h.db.Create(&models.K2Entry{UserID: userID, Data: data}).Error
	default:
		return fiber.NewError(fiber.StatusBadRequest, "unknown model type")
	}
}

func validateFeatures(modelType string, features map[string]any) error {
	if len(features) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "data is required")
	}

	var missing []string
	for _, feature := range requiredFeatures[modelType] {
		if _, ok := features[feature]; !ok {
			missing = append(missing, feature)
		}
	}
	if len(missing) > 0 {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("missing %s features: %s", strings.ToUpper(modelType), strings.Join(missing, ", ")))
	}
	return nil
}

func marshalEntry(modelType string, prediction *services.Prediction, isBulk bool) (json.RawMessage, error) {
	payload := entryPayload{
		Input:  prediction.InputFeatures,
		Output: prediction,
		Metadata: entryMetadata{
			ModelType:      strings.ToUpper(modelType),
			Timestamp:      time.Now().UTC(),
			PredictedClass: prediction.PredictedClass,
			Confidence:     prediction.Confidence,
			IsBulk:         isBulk,
			IsMock:         prediction.IsMock,
		},
	}
	return json.Marshal(payload)
}

type predictRequest struct {
	Data   json.RawMessage `json:"data"`
	IsBulk bool            `json:"is_bulk"`
}

// Predict classifies one feature map (or a batch) with the named
// pretrained model and appends the results to the user's history.
func (h *MLHandler) Predict(modelType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}

		var req predictRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		if len(req.Data) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "data is required")
		}

		if req.IsBulk {
			var items []map[string]any
			if err := json.Unmarshal(req.Data, &items); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "bulk data must be an array of feature maps")
			}
			if len(items) == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "data is required")
			}
			if err := validateFeatures(modelType, items[0]); err != nil {
				return err
			}

			predictions := h.predictor.PredictBulk(modelType, items)
			stored := 0
			for _, prediction := range predictions {
				if prediction == nil {
					continue
				}
				blob, err := marshalEntry(modelType, prediction, true)
				if err != nil {
					return err
				}
				if err := h.storeEntry(modelType, user.ID, blob); err != nil {
					return err
				}
				stored++
			}

			return c.JSON(fiber.Map{
				"success":    true,
				"message":    fmt.Sprintf("processed %d %s records", len(predictions), strings.ToUpper(modelType)),
				"data":       fiber.Map{"predictions": predictions},
				"stored":     stored,
				"model_type": strings.ToUpper(modelType),
			})
		}

		var features map[string]any
		if err := json.Unmarshal(req.Data, &features); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "data must be a feature map")
		}
		if err := validateFeatures(modelType, features); err != nil {
			return err
		}

		prediction, err := h.predictor.Predict(modelType, features)
		if err != nil {
			return err
		}

		blob, err := marshalEntry(modelType, prediction, false)
		if err != nil {
			return err
		}
		if err := h.storeEntry(modelType, user.ID, blob); err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"success":    true,
			"message":    fmt.Sprintf("%s prediction completed successfully", strings.ToUpper(modelType)),
			"data":       fiber.Map{"prediction": prediction},
			"stored":     true,
			"model_type": strings.ToUpper(modelType),
		})
	}
}

// ProcessFile accepts a CSV upload and classifies every row with the
// named model in the background. The response carries a job ID to poll
// through FileStatus.
func (h *MLHandler) ProcessFile(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	modelType := strings.ToLower(c.Params("modelType"))
	if _, ok := requiredFeatures[modelType]; !ok {
		return fiber.NewError(fiber.StatusBadRequest, "unknown model type")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest,
			`please upload a CSV file with field name "file"`)
	}

	f, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	_, rows, err := ParseCSV(f)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to parse CSV: "+err.Error())
	}
	if len(rows) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "CSV file has no data rows")
	}

	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, rowFeatures(row))
	}
	if err := validateFeatures(modelType, items[0]); err != nil {
		return err
	}

	job := models.PredictionJob{
		UserID:    user.ID,
		ModelType: strings.ToUpper(modelType),
		FileName:  fileHeader.Filename,
		Status:    models.JobProcessing,
		TotalRows: len(items),
	}
	if err := h.db.Create(&job).Error; err != nil {
		return err
	}

	go h.runFileJob(job.ID, modelType, user.ID, items)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":    true,
		"message":    fmt.Sprintf("processing %d %s records", len(items), strings.ToUpper(modelType)),
		"job_id":     job.ID,
		"total_rows": len(items),
		"status":     job.Status,
	})
}

// rowFeatures converts a parsed CSV row into the feature map the
// predictor takes, keeping numeric columns numeric.
func rowFeatures(row map[string]string) map[string]any {
	features := make(map[string]any, len(row))
	for key, value := range row {
		if number, err := strconv.ParseFloat(value, 64); err == nil {
			features[key] = number
		} else {
			features[key] = value
		}
	}
	return features
}

func (h *MLHandler) runFileJob(jobID uuid.UUID, modelType string, userID uuid.UUID, items []map[string]any) {
	predictions := h.predictor.PredictBulk(modelType, items)

	processed, stored := 0, 0
	for _, prediction := range predictions {
		processed++
		if prediction == nil {
			continue
		}
		blob, err := marshalEntry(modelType, prediction, true)
		if err != nil {
			h.failJob(jobID, err)
			return
		}
		if err := h.storeEntry(modelType, userID, blob); err != nil {
			h.failJob(jobID, err)
			return
		}
		stored++
	}

	err := h.db.Model(&models.PredictionJob{}).Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":         models.JobCompleted,
			"processed_rows": processed,
			"stored_rows":    stored,
		}).Error
	if err != nil {
		log.Printf("[ml] job %s: failed to record completion: %v", jobID, err)
	}
}

func (h *MLHandler) failJob(jobID uuid.UUID, cause error) {
	err := h.db.Model(&models.PredictionJob{}).Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status": models.JobFailed,
			"error":  cause.Error(),
		}).Error
	if err != nil {
		log.Printf("[ml] job %s: failed to record failure: %v", jobID, err)
	}
}

// FileStatus returns the snapshot of one file-processing job owned by
// the caller.
func (h *MLHandler) FileStatus(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	jobID, err := uuid.Parse(c.Params("jobId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid job ID")
	}

	var job models.PredictionJob
	err = h.db.Where("id = ? AND user_id = ?", jobID, user.ID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "job not found")
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"job":     job,
	})
}

// ListEntries returns the user's prediction history for a model,
// newest first, paginated.
func (h *MLHandler) ListEntries(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	modelType := c.Params("modelType")
	scope, ok := h.entryScope(modelType)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "unknown model type")
	}

	page := utils.ParsePagination(c)

	var total int64
	if err := scope.Where("user_id = ?", user.ID).Count(&total).Error; err != nil {
		return err
	}

	scope, _ = h.entryScope(modelType)
	var rows []entryRow
	err := scope.Where("user_id = ?", user.ID).
		Order("created_at desc").
		Limit(page.Limit).Offset(page.Offset).
		Find(&rows).Error
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"entries": rows,
		"total":   total,
		"page":    page.Page,
		"limit":   page.Limit,
	})
}

type updateEntryRequest struct {
	Data json.RawMessage `json:"data"`
}

// UpdateEntry replaces the stored blob of one history row owned by the
// caller.
func (h *MLHandler) UpdateEntry(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	modelType := c.Params("modelType")
	scope, ok := h.entryScope(modelType)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "unknown model type")
	}

	entryID, err := uuid.Parse(c.Params("entryId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid entry ID")
	}

	var req updateEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Data) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "data is required")
	}

	result := scope.Where("id = ? AND user_id = ?", entryID, user.ID).
		Updates(map[string]interface{}{"data": []byte(req.Data), "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "entry not found")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "entry updated successfully",
	})
}

// DeleteEntry removes one history row owned by the caller.
func (h *MLHandler) DeleteEntry(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	modelType := c.Params("modelType")

	entryID, err := uuid.Parse(c.Params("entryId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid entry ID")
	}

	var result *gorm.DB
	switch strings.ToLower(modelType) {
	case "toi":
		result = h.db.Where("id = ? AND user_id = ?", entryID, user.ID).Delete(&models.TOIEntry{})
	case "koi":
		result = h.db.Where("id = ? AND user_id = ?", entryID, user.ID).Delete(&models.KOIEntry{})
	case "k2":
		result = h.db.Where("id = ? AND user_id = ?", entryID, user.ID).Delete(&models.K2Entry{})
	default:
		return fiber.NewError(fiber.StatusBadRequest, "unknown model type")
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "entry not found")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "entry deleted successfully",
	})
}

// ExportEntries streams the user's history for a model as JSON or a
// flattened CSV.
func (h *MLHandler) ExportEntries(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	modelType := c.Params("modelType")
	scope, ok := h.entryScope(modelType)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "unknown model type")
	}

	var rows []entryRow
	err := scope.Where("user_id = ?", user.ID).Order("created_at desc").Find(&rows).Error
	if err != nil {
		return err
	}

	format := c.Query("format", "json")
	if format == "json" {
		return c.JSON(fiber.Map{
			"success": true,
			"entries": rows,
			"total":   len(rows),
		})
	}
	if format != "csv" {
		return fiber.NewError(fiber.StatusBadRequest, "unsupported export format")
	}

	body, err := entriesToCSV(rows)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s_entries.csv"`, strings.ToLower(modelType)))
	return c.Send(body)
}

// entriesToCSV flattens entry payloads into one row per prediction:
// fixed bookkeeping columns followed by the union of input features in
// sorted order.
func entriesToCSV(rows []entryRow) ([]byte, error) {
	payloads := make([]entryPayload, 0, len(rows))
	featureSet := map[string]bool{}
	for _, row := range rows {
		var payload entryPayload
		if err := json.Unmarshal(row.Data, &payload); err != nil {
			continue
		}
		payloads = append(payloads, payload)
		for feature := range payload.Input {
			featureSet[feature] = true
		}
	}

	features := make([]string, 0, len(featureSet))
	for feature := range featureSet {
		features = append(features, feature)
	}
	sort.Strings(features)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"entry_id", "created_at", "predicted_class", "confidence", "is_mock"}, features...)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for i, payload := range payloads {
		record := []string{
			rows[i].ID.String(),
			rows[i].CreatedAt.UTC().Format(time.RFC3339),
			payload.Metadata.PredictedClass,
			fmt.Sprintf("%.3f", payload.Metadata.Confidence),
			fmt.Sprintf("%t", payload.Metadata.IsMock),
		}
		for _, feature := range features {
			if value, ok := payload.Input[feature]; ok {
				record = append(record, fmt.Sprintf("%v", value))
			} else {
				record = append(record, "")
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// Dashboard returns per-model entry counts for the user.
func (h *MLHandler) Dashboard(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	type recentEntry struct {
		entryRow
		ModelType string `json:"model_type"`
	}

	counts := fiber.Map{}
	var total int64
	var recent []recentEntry
	for _, modelType := range []string{"toi", "koi", "k2"} {
		scope, _ := h.entryScope(modelType)
		var count int64
		if err := scope.Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
			return err
		}
		counts[modelType] = count
		total += count

		scope, _ = h.entryScope(modelType)
		var rows []entryRow
		err := scope.Where("user_id = ?", user.ID).
			Order("created_at desc").Limit(5).Find(&rows).Error
		if err != nil {
			return err
		}
		for _, row := range rows {
			recent = append(recent, recentEntry{entryRow: row, ModelType: strings.ToUpper(modelType)})
		}
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > 5 {
		recent = recent[:5]
	}
	if recent == nil {
		recent = []recentEntry{}
	}

	var customModels int64
	err := h.db.Model(&models.CustomModel{}).Where("user_id = ?", user.ID).Count(&customModels).Error
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"stats": fiber.Map{
			"entries":        counts,
			"total_entries":  total,
			"custom_models":  customModels,
			"recent_entries": recent,
		},
	})
}

// ModelInfo returns static metadata about a pretrained model.
func (h *MLHandler) ModelInfo(c *fiber.Ctx) error {
	modelType := strings.ToLower(c.Params("modelType"))
	features, ok := requiredFeatures[modelType]
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "unknown model type")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"model_info": fiber.Map{
			"model_type":        strings.ToUpper(modelType),
			"is_trained":        true,
			"class_names":       services.PredictionClasses,
			"selected_features": features,
		},
	})
}
