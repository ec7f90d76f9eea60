package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/example/exodetect/internal/config"
)

var predictClient = &http.Client{Timeout: 30 * time.Second}

// PredictionClasses are the disposition codes the classifiers emit
// (false positive, planet candidate, known planet, confirmed planet,
// ambiguous candidate, false alarm).
var PredictionClasses = []string{"FP", "PC", "KP", "CP", "APC", "FA"}

// Prediction is a single classification result.
type Prediction struct {
	PredictedClass string             `json:"predicted_class"`
	Confidence     float64            `json:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities,omitempty"`
	InputFeatures  map[string]any     `json:"input_features,omitempty"`
	IsMock         bool               `json:"is_mock"`
}

// Predictor proxies classification requests to per-model services.
// When a service URL is unconfigured or unreachable it returns a mock
// prediction, so the rest of the pipeline stays exercisable.
type Predictor struct {
	serviceURLs map[string]string
}

// NewPredictor reads the per-model service URLs from config.
func NewPredictor(cfg *config.Config) *Predictor {
	return &Predictor{
		serviceURLs: map[string]string{
			"toi": strings.TrimRight(cfg.TOIServiceURL, "/"),
			"koi": strings.TrimRight(cfg.KOIServiceURL, "/"),
			"k2":  strings.TrimRight(cfg.K2ServiceURL, "/"),
		},
	}
}

// Predict classifies one feature map with the named model.
func (p *Predictor) Predict(modelType string, features map[string]any) (*Prediction, error) {
	baseURL := p.serviceURLs[modelType]
	if baseURL == "" {
		return p.mockPrediction(modelType, features), nil
	}

	body, err := json.Marshal(features)
	if err != nil {
		return nil, err
	}

	resp, err := predictClient.Post(baseURL+"/predict", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[predict] %s service unreachable, returning mock: %v", modelType, err)
		return p.mockPrediction(modelType, features), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		log.Printf("[predict] %s service returned %d, returning mock", modelType, resp.StatusCode)
		return p.mockPrediction(modelType, features), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s prediction failed with status %d", modelType, resp.StatusCode)
	}

	var prediction Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("%s prediction decode failed: %w", modelType, err)
	}
	prediction.InputFeatures = features
	return &prediction, nil
}

// PredictBulk classifies each feature map independently; items keep
// their order and failed items carry no prediction.
func (p *Predictor) PredictBulk(modelType string, items []map[string]any) []*Prediction {
	predictions := make([]*Prediction, 0, len(items))
	for _, features := range items {
		prediction, err := p.Predict(modelType, features)
		if err != nil {
			predictions = append(predictions, nil)
			continue
		}
		predictions = append(predictions, prediction)
	}
	return predictions
}

func (p *Predictor) mockPrediction(modelType string, features map[string]any) *Prediction {
	classes := PredictionClasses
	picked := classes[rand.Intn(len(classes))]
	confidence := 0.70 + rand.Float64()*0.25

	probabilities := make(map[string]float64, len(classes))
	remainder := 1.0 - confidence
	for _, class := range classes {
		if class == picked {
			probabilities[class] = confidence
		} else {
			probabilities[class] = remainder / float64(len(classes)-1)
		}
	}

	return &Prediction{
		PredictedClass: picked,
		Confidence:     confidence,
		Probabilities:  probabilities,
		InputFeatures:  features,
		IsMock:         true,
	}
}
