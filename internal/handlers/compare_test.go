package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/exodetect/internal/handlers"
)

func uploadCSVs(t *testing.T, files map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for field, content := range files {
		part, err := writer.CreateFormFile(field, field+".csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/compare", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestCompareEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	req := uploadCSVs(t, map[string]string{
		"file1": "id,disposition,period\n1,PC,3.5\n2,FP,7.2\n",
		"file2": "id,disposition,period\n2,FP,7.2\n",
	})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))

	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["total_items_file1"])
	assert.Equal(t, float64(1), summary["total_items_file2"])
	assert.Equal(t, float64(1), summary["total_matches"])
	assert.Equal(t, float64(50), summary["matching_percentage"])

	rows := summary["matching_rows"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, "2", row["id"])
	assert.Equal(t, float64(2), row["num_matches"])
	assert.Equal(t, float64(0), row["num_mismatches"])

	unmatched := summary["unmatched_rows"].([]interface{})
	assert.Equal(t, []interface{}{"1"}, unmatched)
}

func TestCompareMissingFile(t *testing.T) {
	app, _ := newTestApp(t)

	req := uploadCSVs(t, map[string]string{
		"file1": "id,a\n1,x\n",
	})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompareNoCommonIdentifier(t *testing.T) {
	app, _ := newTestApp(t)

	req := uploadCSVs(t, map[string]string{
		"file1": "id,a\n1,x\n",
		"file2": "name,a\njupiter,x\n",
	})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompareRowsMismatchCounting(t *testing.T) {
	t.Parallel()

	headers := []string{"TOI", "disposition", "period"}
	rows1 := []map[string]string{
		{"TOI": "100", "disposition": "PC", "period": "3.5"},
		{"TOI": "101", "disposition": "FP", "period": "1.0"},
		{"TOI": "102", "disposition": "KP", "period": "9.9"},
	}
	rows2 := []map[string]string{
		{"TOI": "100", "disposition": "PC", "period": "3.5"},
		{"TOI": "101", "disposition": "CP", "period": "1.0"},
	}

	summary, err := handlers.CompareRows(headers, rows1, headers, rows2)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalMatches)
	assert.InDelta(t, 66.67, summary.MatchingPercentage, 0.001)
	assert.Equal(t, []string{"disposition", "period"}, summary.CommonHeaders)

	require.Len(t, summary.MatchingRows, 2)
	assert.Equal(t, 2, summary.MatchingRows[0].NumMatches)
	assert.Equal(t, 1, summary.MatchingRows[1].NumMatches)
	assert.Equal(t, 1, summary.MatchingRows[1].NumMismatches)
	assert.Equal(t, map[string]string{"file1": "FP", "file2": "CP"},
		summary.MatchingRows[1].Mismatches["disposition"])

	assert.Equal(t, []string{"102"}, summary.UnmatchedRows)
}

func TestParseCSV(t *testing.T) {
	t.Parallel()

	input := "# exported catalog\nid, name ,period\n1, Kepler-22b , 289.9\n\n2,HD 209458 b,3.5\n"
	headers, rows, err := handlers.ParseCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "period"}, headers)
	require.Len(t, rows, 2)
	assert.Equal(t, "Kepler-22b", rows[0]["name"])
	assert.Equal(t, "3.5", rows[1]["period"])
}
