package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ethanolivertroy/depaudit/internal/errors"
	"github.com/ethanolivertroy/depaudit/internal/models"
)

// Format is the on-disk encoding of a persisted report
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFor picks the encoding from the file extension; JSON unless .toml
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatJSON
}

// Encode serializes the report in the given format
func Encode(r models.ScanReport, format Format) ([]byte, error) {
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(r); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

// Decode parses a report in the given format
func Decode(data []byte, format Format) (*models.ScanReport, error) {
	var r models.ScanReport
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), &r); err != nil {
			return nil, err
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
	if r.Results == nil {
		r.Results = []models.ScanRecord{}
	}
	for i := range r.Results {
		if r.Results[i].Vulnerabilities == nil {
			r.Results[i].Vulnerabilities = []models.Advisory{}
		}
	}
	return &r, nil
}

// Save writes the report to path, creating parent directories
func Save(path string, r models.ScanReport) error {
	if path == "" {
		return errors.New(errors.ErrCodeReportWriteFailed, "report path is empty")
	}

	data, err := Encode(r, FormatFor(path))
	if err != nil {
		return errors.Wrap(errors.ErrCodeReportWriteFailed, err, "encode report")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeReportWriteFailed, err, "create directory for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeReportWriteFailed, err, "write %s", path)
	}
	return nil
}

// Load reads a report previously written by Save
func Load(path string) (*models.ScanReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Decode(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return r, nil
}
