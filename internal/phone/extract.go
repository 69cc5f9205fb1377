package phone

import (
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	dErrors "numcheck/pkg/domain-errors"
)

// SourceKind is the layout of an uploaded candidate list.
type SourceKind string

const (
	KindText SourceKind = "txt"
	KindCSV  SourceKind = "csv"
)

// KindFromFilename picks the layout from a file extension.
func KindFromFilename(name string) (SourceKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return KindText, nil
	case ".csv":
		return KindCSV, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "only .txt or .csv files are supported")
	}
}

// ExtractCandidates splits a free-text blob on newlines and commas and keeps
// the trimmed fragments that contain at least one digit.
func ExtractCandidates(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part != "" && strings.ContainsAny(part, "0123456789") {
				out = append(out, part)
			}
		}
	}
	return out
}

// ReadCandidates reads a candidate list. Text input goes through
// ExtractCandidates; CSV input uses the first column and skips a header row
// that has no digits.
func ReadCandidates(r io.Reader, kind SourceKind) ([]string, error) {
	switch kind {
	case KindText:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "read candidates")
		}
		return ExtractCandidates(string(data)), nil
	case KindCSV:
		return readCSVColumn(r)
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported source kind")
	}
}

func readCSVColumn(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var lines []string
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed CSV")
		}
		if len(rec) == 0 {
			continue
		}
		cell := rec[0]
		if first {
			first = false
			if !strings.ContainsAny(cell, "0123456789") {
				continue
			}
		}
		lines = append(lines, cell)
	}
	return ExtractCandidates(strings.Join(lines, "\n")), nil
}
