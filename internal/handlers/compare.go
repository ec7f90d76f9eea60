package handlers

import (
	"encoding/csv"
	"io"
	"math"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CompareHandler is the stateless CSV comparison utility. It joins two
// uploaded files on a shared identifier column and reports how much of
// the first file matches the second.
type CompareHandler struct{}

// NewCompareHandler constructs a CompareHandler.
func NewCompareHandler() *CompareHandler {
	return &CompareHandler{}
}

// commonIDKeys are the identifier columns tried, in order, when
// joining the two files.
var commonIDKeys = []string{"id", "ID", "toi", "TOI", "tid", "TID", "kic", "KIC"}

type rowComparison struct {
	ID            string                       `json:"id"`
	File1         map[string]string            `json:"file1"`
	File2         map[string]string            `json:"file2"`
	Matches       map[string]string            `json:"matches"`
	Mismatches    map[string]map[string]string `json:"mismatches"`
	NumMatches    int                          `json:"num_matches"`
	NumMismatches int                          `json:"num_mismatches"`
}

type compareSummary struct {
	TotalItemsFile1    int             `json:"total_items_file1"`
	TotalItemsFile2    int             `json:"total_items_file2"`
	TotalMatches       int             `json:"total_matches"`
	MatchingPercentage float64         `json:"matching_percentage"`
	CommonHeaders      []string        `json:"common_headers"`
	MatchingRows       []rowComparison `json:"matching_rows"`
	UnmatchedRows      []string        `json:"unmatched_rows"`
}

// Compare handles the two-file upload and returns the match summary.
func (h *CompareHandler) Compare(c *fiber.Ctx) error {
	file1, err := c.FormFile("file1")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest,
			`please upload both files with field names "file1" and "file2"`)
	}
	file2, err := c.FormFile("file2")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest,
			`please upload both files with field names "file1" and "file2"`)
	}

	headers1, rows1, err := parseCSVUpload(file1)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to parse file1: "+err.Error())
	}
	headers2, rows2, err := parseCSVUpload(file2)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to parse file2: "+err.Error())
	}

	if len(rows1) == 0 || len(rows2) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "one or both CSV files are empty")
	}

	summary, err := CompareRows(headers1, rows1, headers2, rows2)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "file comparison complete",
		"summary": summary,
	})
}

// CompareRows joins the parsed files on the first shared identifier
// column and compares every common header value per matched row.
func CompareRows(headers1 []string, rows1 []map[string]string, headers2 []string, rows2 []map[string]string) (*compareSummary, error) {
	primaryKey := ""
	for _, key := range commonIDKeys {
		if containsHeader(headers1, key) && containsHeader(headers2, key) {
			primaryKey = key
			break
		}
	}
	if primaryKey == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest,
			"no common identifier (ID, TOI, KIC, etc.) found in the files for comparison")
	}

	lookup := make(map[string]map[string]string, len(rows2))
	for _, row := range rows2 {
		if key := row[primaryKey]; key != "" {
			lookup[key] = row
		}
	}

	var commonHeaders []string
	for _, header := range headers1 {
		if header != primaryKey && containsHeader(headers2, header) {
			commonHeaders = append(commonHeaders, header)
		}
	}

	summary := &compareSummary{
		TotalItemsFile1: len(rows1),
		TotalItemsFile2: len(rows2),
		CommonHeaders:   commonHeaders,
		MatchingRows:    []rowComparison{},
		UnmatchedRows:   []string{},
	}

	seen := map[string]bool{}
	for _, row1 := range rows1 {
		key := row1[primaryKey]
		row2, found := lookup[key]
		if !found {
			if !seen[key] {
				seen[key] = true
				summary.UnmatchedRows = append(summary.UnmatchedRows, key)
			}
			continue
		}

		comparison := rowComparison{
			ID:         key,
			File1:      row1,
			File2:      row2,
			Matches:    map[string]string{},
			Mismatches: map[string]map[string]string{},
		}
		for _, header := range commonHeaders {
			value1 := strings.TrimSpace(row1[header])
			value2 := strings.TrimSpace(row2[header])
			switch {
			case value1 == value2:
				comparison.Matches[header] = value1
				comparison.NumMatches++
			case value1 != "" && value2 != "":
				comparison.Mismatches[header] = map[string]string{"file1": value1, "file2": value2}
				comparison.NumMismatches++
			}
		}

		summary.TotalMatches++
		summary.MatchingRows = append(summary.MatchingRows, comparison)
	}

	if len(rows1) > 0 {
		percentage := float64(summary.TotalMatches) / float64(len(rows1)) * 100
		summary.MatchingPercentage = math.Round(percentage*100) / 100
	}

	return summary, nil
}

func containsHeader(headers []string, name string) bool {
	for _, header := range headers {
		if header == name {
			return true
		}
	}
	return false
}

func parseCSVUpload(file *multipart.FileHeader) ([]string, []map[string]string, error) {
	f, err := file.Open()
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	return ParseCSV(f)
}

// ParseCSV reads header-first CSV into one map per row, trimming both
// headers and values. Blank lines and '#' comment lines are skipped.
func ParseCSV(r io.Reader) ([]string, []map[string]string, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	headers := make([]string, len(records[0]))
	for i, header := range records[0] {
		headers[i] = strings.TrimSpace(header)
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		row := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = strings.TrimSpace(record[i])
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}

	return headers, rows, nil
}
