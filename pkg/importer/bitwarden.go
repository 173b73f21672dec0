package importer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forest6511/keysmith/pkg/vault"
)

// BitwardenParser parses Bitwarden JSON export files (unencrypted).
type BitwardenParser struct{}

// Bitwarden item types.
const (
	bitwardenTypeLogin      = 1
	bitwardenTypeSecureNote = 2
	bitwardenTypeCard       = 3
	bitwardenTypeIdentity   = 4
)

// bitwardenExport represents the top-level Bitwarden export structure.
type bitwardenExport struct {
	Encrypted   bool                  `json:"encrypted"`
	Items       []bitwardenItem       `json:"items"`
	Folders     []bitwardenFolder     `json:"folders"`
	Collections []bitwardenCollection `json:"collections"`
}

type bitwardenFolder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type bitwardenCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// bitwardenItem represents a Bitwarden vault item.
type bitwardenItem struct {
	Type          int                    `json:"type"`
	Name          string                 `json:"name"`
	Notes         string                 `json:"notes"`
	Favorite      bool                   `json:"favorite"`
	FolderID      *string                `json:"folderId"`
	CollectionIDs []string               `json:"collectionIds"`
	Login         *bitwardenLogin        `json:"login"`
	Card          *bitwardenCard         `json:"card"`
	Identity      *bitwardenIdentity     `json:"identity"`
	Fields        []bitwardenCustomField `json:"fields"`
}

type bitwardenLogin struct {
	URIs     []bitwardenURI `json:"uris"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	TOTP     string         `json:"totp"`
}

type bitwardenURI struct {
	URI string `json:"uri"`
}

type bitwardenCard struct {
	CardholderName string `json:"cardholderName"`
	Number         string `json:"number"`
	ExpMonth       string `json:"expMonth"`
	ExpYear        string `json:"expYear"`
	Code           string `json:"code"`
	Brand          string `json:"brand"`
}

type bitwardenIdentity struct {
	Title          string `json:"title"`
	FirstName      string `json:"firstName"`
	MiddleName     string `json:"middleName"`
	LastName       string `json:"lastName"`
	Username       string `json:"username"`
	Company        string `json:"company"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address1       string `json:"address1"`
	Address2       string `json:"address2"`
	Address3       string `json:"address3"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postalCode"`
	Country        string `json:"country"`
	SSN            string `json:"ssn"`
	PassportNumber string `json:"passportNumber"`
	LicenseNumber  string `json:"licenseNumber"`
}

type bitwardenCustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  int    `json:"type"`
}

// Source returns the source type for this parser.
func (p *BitwardenParser) Source() Source {
	return SourceBitwarden
}

// Parse parses Bitwarden JSON data.
func (p *BitwardenParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	result := newResult()

	var export bitwardenExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse Bitwarden JSON: %w", err)
	}
	if export.Encrypted {
		return nil, fmt.Errorf("encrypted Bitwarden exports are not supported; export as unencrypted JSON")
	}

	groups := make(map[string]string)
	for _, f := range export.Folders {
		groups[f.ID] = f.Name
	}
	for _, c := range export.Collections {
		groups[c.ID] = c.Name
	}

	itemCounter := 1
	for i := range export.Items {
		item := &export.Items[i]
		entry, warning := p.parseItem(item, groups, &itemCounter)
		if warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("item %d (%s): %s", i+1, item.Name, warning))
		}
		if entry != nil {
			result.Entries = append(result.Entries, *entry)
		} else {
			result.Skipped = append(result.Skipped, SkippedItem{
				OriginalName: item.Name,
				Reason:       skipReason(warning),
			})
		}
	}

	result.finish(opts)
	return result, nil
}

func skipReason(warning string) string {
	if warning != "" {
		return warning
	}
	return "no useful data"
}

// parseItem converts one item. A nil entry means the item was skipped.
func (p *BitwardenParser) parseItem(item *bitwardenItem, groups map[string]string, itemCounter *int) (*vault.Entry, string) {
	e := &vault.Entry{Favorite: item.Favorite}
	var warning, url string

	switch item.Type {
	case bitwardenTypeLogin:
		if item.Login == nil {
			return nil, ""
		}
		url, warning = p.parseLogin(item, e)
	case bitwardenTypeSecureNote:
		if IsEmptyOrWhitespace(item.Notes) {
			return nil, ""
		}
		e.Fields = vault.NoteFields{Content: item.Notes}
	case bitwardenTypeCard:
		if item.Card == nil {
			return nil, ""
		}
		warning = p.parseCard(item, e)
	case bitwardenTypeIdentity:
		if item.Identity == nil {
			return nil, ""
		}
		p.parseIdentity(item, e)
	default:
		return nil, fmt.Sprintf("unsupported item type: %d", item.Type)
	}
	if len(e.Fields.Values()) == 0 && len(e.CustomFields) == 0 && len(item.Fields) == 0 {
		return nil, ""
	}

	for _, cf := range item.Fields {
		label := strings.TrimSpace(cf.Name)
		if label == "" {
			label = "Custom field"
		}
		if cf.Value != "" {
			e.CustomFields = append(e.CustomFields, vault.CustomField{Label: label, Value: cf.Value})
		}
	}

	e.Name = nameFor(item.Name, url, itemCounter)

	if item.FolderID != nil {
		if name := groups[*item.FolderID]; name != "" {
			e.Tags = append(e.Tags, name)
		}
	}
	for _, id := range item.CollectionIDs {
		if name := groups[id]; name != "" {
			e.Tags = append(e.Tags, name)
		}
	}

	return e, warning
}

// parseLogin fills a login entry and returns its primary URL.
func (p *BitwardenParser) parseLogin(item *bitwardenItem, e *vault.Entry) (string, string) {
	login := item.Login
	f := vault.LoginFields{
		Username: login.Username,
		Password: login.Password,
		Notes:    item.Notes,
	}

	for i, u := range login.URIs {
		if u.URI == "" {
			continue
		}
		if f.URL == "" {
			f.URL = u.URI
			continue
		}
		e.CustomFields = append(e.CustomFields, vault.CustomField{
			Label: fmt.Sprintf("URL %d", i+1),
			Value: u.URI,
		})
	}

	secret, warning := parseTOTP(login.TOTP, e)
	f.TOTP = secret
	e.Fields = f
	return f.URL, warning
}

// parseCard fills a card entry. Expiry is converted to MM/YY.
func (p *BitwardenParser) parseCard(item *bitwardenItem, e *vault.Entry) string {
	card := item.Card
	f := vault.CardFields{
		CardName:   card.CardholderName,
		CardNumber: card.Number,
		CVV:        card.Code,
		Notes:      item.Notes,
	}
	if card.Brand != "" {
		e.CustomFields = append(e.CustomFields, vault.CustomField{Label: "Brand", Value: card.Brand})
	}

	var warning string
	if card.ExpMonth != "" || card.ExpYear != "" {
		expiry, ok := formatExpiry(card.ExpMonth, card.ExpYear)
		if ok {
			f.Expiry = expiry
		} else {
			e.CustomFields = append(e.CustomFields, vault.CustomField{
				Label: "Expiry",
				Value: strings.Trim(card.ExpMonth+"/"+card.ExpYear, "/"),
			})
			warning = "unrecognized card expiry kept as custom field"
		}
	}
	e.Fields = f
	return warning
}

// formatExpiry converts a month and a 2- or 4-digit year to MM/YY.
func formatExpiry(month, year string) (string, bool) {
	var mm, yy int
	if _, err := fmt.Sscanf(strings.TrimSpace(month), "%d", &mm); err != nil || mm < 1 || mm > 12 {
		return "", false
	}
	year = strings.TrimSpace(year)
	if len(year) != 2 && len(year) != 4 {
		return "", false
	}
	if _, err := fmt.Sscanf(year, "%d", &yy); err != nil {
		return "", false
	}
	return fmt.Sprintf("%02d/%02d", mm, yy%100), true
}

// parseIdentity fills an identity entry. Fields the identity template has
// no slot for become custom fields.
func (p *BitwardenParser) parseIdentity(item *bitwardenItem, e *vault.Entry) {
	id := item.Identity

	var addr []string
	for _, part := range []string{id.Address1, id.Address2, id.Address3, id.City, id.State, id.PostalCode, id.Country} {
		if part = strings.TrimSpace(part); part != "" {
			addr = append(addr, part)
		}
	}

	e.Fields = vault.IdentityFields{
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Email:     id.Email,
		Phone:     id.Phone,
		Address:   strings.Join(addr, ", "),
		Notes:     item.Notes,
	}

	for _, cf := range []vault.CustomField{
		{Label: "Title", Value: id.Title},
		{Label: "Middle name", Value: id.MiddleName},
		{Label: "Username", Value: id.Username},
		{Label: "Company", Value: id.Company},
		{Label: "SSN", Value: id.SSN},
		{Label: "Passport", Value: id.PassportNumber},
		{Label: "License", Value: id.LicenseNumber},
	} {
		if cf.Value != "" {
			e.CustomFields = append(e.CustomFields, cf)
		}
	}
}
