package report

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Parser deserializes a report file back into a Report.
type Parser interface {
	Parse(data []byte) (*Report, error)
}

// ParserFor picks a parser from the file extension of path.
func ParserFor(path string) Parser {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return &JSONParser{}
	}
	return &MarkdownParser{}
}

// JSONParser parses a JSON-encoded Report.
type JSONParser struct{}

func (JSONParser) Parse(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse JSON report: %w", err)
	}
	return &r, nil
}

// MarkdownParser extracts the embedded payload from a Markdown report.
type MarkdownParser struct{}

func (MarkdownParser) Parse(data []byte) (*Report, error) {
	content := string(data)

	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("not a valid focusgate report: missing version sentinel")
	}

	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("not a valid focusgate report: missing data payload")
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], dataSuffix)
	if end == -1 {
		return nil, fmt.Errorf("not a valid focusgate report: malformed data payload")
	}

	jsonBytes, err := base64.StdEncoding.DecodeString(content[start : start+end])
	if err != nil {
		return nil, fmt.Errorf("not a valid focusgate report: corrupted base64 payload: %w", err)
	}

	var r Report
	if err := json.Unmarshal(jsonBytes, &r); err != nil {
		return nil, fmt.Errorf("not a valid focusgate report: failed to parse embedded JSON: %w", err)
	}
	return &r, nil
}
