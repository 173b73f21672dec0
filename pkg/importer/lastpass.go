package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/forest6511/keysmith/pkg/vault"
)

// LastPassParser parses LastPass CSV export files:
// url,username,password,totp,extra,name,grouping,fav
type LastPassParser struct{}

// LastPass CSV column names (header-based parsing).
const (
	lpColURL      = "url"
	lpColUsername = "username"
	lpColPassword = "password"
	lpColTOTP     = "totp"
	lpColExtra    = "extra"
	lpColName     = "name"
	lpColGrouping = "grouping"
	lpColFav      = "fav"
)

// lpSecureNoteURL marks secure notes in LastPass exports.
const lpSecureNoteURL = "http://sn"

// Source returns the source type for this parser.
func (p *LastPassParser) Source() Source {
	return SourceLastPass
}

// Parse parses LastPass CSV data.
func (p *LastPassParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	result := newResult()

	// Strip UTF-8 BOM if present
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true // Handle malformed exports
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := colIndex[lpColName]; !ok {
		return nil, fmt.Errorf("missing required column: %s", lpColName)
	}

	itemCounter := 1
	rowNum := 1 // header is row 1
	for {
		rowNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: failed to parse: %v", rowNum, err))
			continue
		}
		if len(row) != len(header) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: column count mismatch (expected %d, got %d)",
					rowNum, len(header), len(row)))
			continue
		}

		entry, warning := p.parseRow(row, colIndex, &itemCounter)
		if warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: %s", rowNum, warning))
		}
		if entry != nil {
			result.Entries = append(result.Entries, *entry)
		} else {
			result.Skipped = append(result.Skipped, SkippedItem{
				OriginalName: row[colIndex[lpColName]],
				Reason:       "no useful data",
			})
		}
	}

	result.finish(opts)
	return result, nil
}

// parseRow converts a single CSV row. A nil entry means the row was skipped.
func (p *LastPassParser) parseRow(row []string, colIndex map[string]int, itemCounter *int) (*vault.Entry, string) {
	getValue := func(col string) string {
		if idx, ok := colIndex[col]; ok && idx < len(row) {
			return DecodeHTMLEntities(strings.TrimSpace(row[idx]))
		}
		return ""
	}

	url := getValue(lpColURL)
	username := getValue(lpColUsername)
	password := getValue(lpColPassword)
	rawTOTP := getValue(lpColTOTP)
	extra := getValue(lpColExtra)

	e := &vault.Entry{Favorite: getValue(lpColFav) == "1"}
	if grouping := getValue(lpColGrouping); grouping != "" {
		// Nested groups ("Work\Email") are kept as one tag.
		e.Tags = []string{grouping}
	}

	var warning string
	if url == lpSecureNoteURL {
		if extra == "" {
			return nil, ""
		}
		e.Fields = vault.NoteFields{Content: extra}
		url = ""
	} else {
		if username == "" && password == "" && rawTOTP == "" && extra == "" {
			return nil, ""
		}
		f := vault.LoginFields{Username: username, Password: password, URL: url, Notes: extra}
		f.TOTP, warning = parseTOTP(rawTOTP, e)
		e.Fields = f
	}

	e.Name = nameFor(getValue(lpColName), url, itemCounter)
	return e, warning
}
