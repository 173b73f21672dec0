package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/forest6511/keysmith/pkg/vault"
)

// OnePasswordParser parses 1Password CSV export files:
// Title,Website,Username,Password,OTPAuth,Favorite,Archived,Tags,Notes
type OnePasswordParser struct{}

// 1Password CSV column names (header-based parsing).
const (
	op1ColTitle    = "Title"
	op1ColWebsite  = "Website"
	op1ColUsername = "Username"
	op1ColPassword = "Password"
	op1ColOTPAuth  = "OTPAuth"
	op1ColFavorite = "Favorite"
	op1ColArchived = "Archived"
	op1ColTags     = "Tags"
	op1ColNotes    = "Notes"
)

// Source returns the source type for this parser.
func (p *OnePasswordParser) Source() Source {
	return Source1Password
}

// Parse parses 1Password CSV data. Archived items are skipped.
func (p *OnePasswordParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
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
		colIndex[strings.TrimSpace(col)] = i
	}
	if _, ok := colIndex[op1ColTitle]; !ok {
		return nil, fmt.Errorf("missing required column: %s", op1ColTitle)
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

		entry, skip, warning := p.parseRow(row, colIndex, &itemCounter)
		if warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: %s", rowNum, warning))
		}
		if entry != nil {
			result.Entries = append(result.Entries, *entry)
		} else {
			result.Skipped = append(result.Skipped, SkippedItem{
				OriginalName: row[colIndex[op1ColTitle]],
				Reason:       skip,
			})
		}
	}

	result.finish(opts)
	return result, nil
}

// parseRow converts a single CSV row. A nil entry comes with a skip reason.
func (p *OnePasswordParser) parseRow(row []string, colIndex map[string]int, itemCounter *int) (*vault.Entry, string, string) {
	getValue := func(col string) string {
		if idx, ok := colIndex[col]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	if isTrue(getValue(op1ColArchived)) {
		return nil, "archived", ""
	}

	website := getValue(op1ColWebsite)
	username := getValue(op1ColUsername)
	password := getValue(op1ColPassword)
	otpAuth := getValue(op1ColOTPAuth)
	notes := getValue(op1ColNotes)

	if username == "" && password == "" && otpAuth == "" && notes == "" {
		return nil, "no useful data", ""
	}

	e := &vault.Entry{
		Favorite: isTrue(getValue(op1ColFavorite)),
		Tags:     splitTags(getValue(op1ColTags)),
	}

	var warning string
	if username == "" && password == "" && otpAuth == "" && website == "" {
		e.Fields = vault.NoteFields{Content: notes}
	} else {
		f := vault.LoginFields{Username: username, Password: password, URL: website, Notes: notes}
		f.TOTP, warning = parseTOTP(otpAuth, e)
		e.Fields = f
	}

	e.Name = nameFor(getValue(op1ColTitle), website, itemCounter)
	return e, "", warning
}

func isTrue(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}
