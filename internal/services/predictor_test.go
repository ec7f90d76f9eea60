package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/exodetect/internal/config"
)

func TestPredictorMockMode(t *testing.T) {
	t.Parallel()

	predictor := NewPredictor(&config.Config{})
	features := map[string]any{"pl_orbper": 3.5, "pl_rade": 1.2}

	prediction, err := predictor.Predict("toi", features)
	require.NoError(t, err)

	assert.True(t, prediction.IsMock)
	assert.Contains(t, PredictionClasses, prediction.PredictedClass)
	assert.GreaterOrEqual(t, prediction.Confidence, 0.70)
	assert.LessOrEqual(t, prediction.Confidence, 0.95)
	assert.Equal(t, features, prediction.InputFeatures)

	var sum float64
	for _, probability := range prediction.Probabilities {
		sum += probability
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, prediction.Confidence, prediction.Probabilities[prediction.PredictedClass])
}

func TestPredictorRemoteService(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Prediction{PredictedClass: "CP", Confidence: 0.99})
	}))
	defer server.Close()

	predictor := NewPredictor(&config.Config{TOIServiceURL: server.URL})
	features := map[string]any{"pl_orbper": 3.5}

	prediction, err := predictor.Predict("toi", features)
	require.NoError(t, err)

	assert.False(t, prediction.IsMock)
	assert.Equal(t, "CP", prediction.PredictedClass)
	assert.Equal(t, 0.99, prediction.Confidence)
	assert.Equal(t, features, prediction.InputFeatures)
}

func TestPredictorFallsBackOnServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	predictor := NewPredictor(&config.Config{KOIServiceURL: server.URL})
	prediction, err := predictor.Predict("koi", map[string]any{"koi_depth": 120.0})
	require.NoError(t, err)
	assert.True(t, prediction.IsMock, "5xx from the service degrades to mock")
}

func TestPredictorFallsBackWhenUnreachable(t *testing.T) {
	t.Parallel()

	predictor := NewPredictor(&config.Config{K2ServiceURL: "http://127.0.0.1:1"})
	prediction, err := predictor.Predict("k2", map[string]any{"pl_insol": 1.0})
	require.NoError(t, err)
	assert.True(t, prediction.IsMock)
}

func TestPredictorClientErrorIsNotMasked(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	predictor := NewPredictor(&config.Config{TOIServiceURL: server.URL})
	_, err := predictor.Predict("toi", map[string]any{"pl_orbper": 3.5})
	assert.Error(t, err, "4xx means the input is wrong, not the service")
}

func TestPredictBulkKeepsOrder(t *testing.T) {
	t.Parallel()

	predictor := NewPredictor(&config.Config{})
	items := []map[string]any{
		{"pl_orbper": 1.0},
		{"pl_orbper": 2.0},
		{"pl_orbper": 3.0},
	}

	predictions := predictor.PredictBulk("toi", items)
	require.Len(t, predictions, 3)
	for i, prediction := range predictions {
		require.NotNil(t, prediction)
		assert.Equal(t, items[i], prediction.InputFeatures)
	}
}
