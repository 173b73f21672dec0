package vault

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forest6511/keysmith/pkg/totp"
)

// EntryType names an entry template.
type EntryType string

// Entry templates.
const (
	TypeLogin    EntryType = "login"
	TypeNote     EntryType = "note"
	TypeWifi     EntryType = "wifi"
	TypeIdentity EntryType = "identity"
	TypeCard     EntryType = "card"
)

// MaxPasswordHistory is the number of previous passwords kept per entry.
const MaxPasswordHistory = 10

// Wi-Fi security modes.
var WifiSecurityModes = []string{"WPA3", "WPA2", "WPA", "WEP", "None"}

// Fields is the typed field set of one template. The set of
// implementations is closed: LoginFields, NoteFields, WifiFields,
// IdentityFields and CardFields.
type Fields interface {
	Type() EntryType
	// Secret returns the password field, or "" for templates without one.
	Secret() string
	// Values returns the fields keyed by their JSON names, omitting empties.
	Values() map[string]string
	Validate() error

	sealed()
}

// LoginFields is a website or service account.
type LoginFields struct {
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
	TOTP     string `json:"totp,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

func (LoginFields) Type() EntryType  { return TypeLogin }
func (f LoginFields) Secret() string { return f.Password }
func (LoginFields) sealed()          {}

func (f LoginFields) Values() map[string]string {
	return compact(map[string]string{
		"username": f.Username, "password": f.Password, "url": f.URL,
		"totp": f.TOTP, "notes": f.Notes,
	})
}

// Validate checks the TOTP secret strictly; bare base32 and otpauth URIs
// are accepted.
func (f LoginFields) Validate() error {
	if f.TOTP == "" {
		return nil
	}
	if _, err := totp.ParseSecret(f.TOTP); err != nil {
		return fmt.Errorf("%w: totp: %v", ErrInvalidEntry, err)
	}
	return nil
}

// NoteFields is a free-form secure note.
type NoteFields struct {
	Content string `json:"content"`
}

func (NoteFields) Type() EntryType { return TypeNote }
func (NoteFields) Secret() string  { return "" }
func (NoteFields) sealed()         {}

func (f NoteFields) Values() map[string]string {
	return compact(map[string]string{"content": f.Content})
}

func (f NoteFields) Validate() error { return nil }

// WifiFields is a wireless network credential.
type WifiFields struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	Security string `json:"security"`
	Notes    string `json:"notes,omitempty"`
}

func (WifiFields) Type() EntryType  { return TypeWifi }
func (f WifiFields) Secret() string { return f.Password }
func (WifiFields) sealed()          {}

func (f WifiFields) Values() map[string]string {
	return compact(map[string]string{
		"ssid": f.SSID, "password": f.Password, "security": f.Security, "notes": f.Notes,
	})
}

func (f WifiFields) Validate() error {
	if f.Security == "" {
		return nil
	}
	for _, m := range WifiSecurityModes {
		if f.Security == m {
			return nil
		}
	}
	return fmt.Errorf("%w: security must be one of %s", ErrInvalidEntry, strings.Join(WifiSecurityModes, ", "))
}

// IdentityFields is personal contact information.
type IdentityFields struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func (IdentityFields) Type() EntryType { return TypeIdentity }
func (IdentityFields) Secret() string  { return "" }
func (IdentityFields) sealed()         {}

func (f IdentityFields) Values() map[string]string {
	return compact(map[string]string{
		"firstName": f.FirstName, "lastName": f.LastName, "email": f.Email,
		"phone": f.Phone, "address": f.Address, "notes": f.Notes,
	})
}

func (f IdentityFields) Validate() error { return nil }

// CardFields is a payment card.
type CardFields struct {
	CardName   string `json:"cardName"`
	CardNumber string `json:"cardNumber"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	PIN        string `json:"pin,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

func (CardFields) Type() EntryType { return TypeCard }
func (CardFields) Secret() string  { return "" }
func (CardFields) sealed()         {}

func (f CardFields) Values() map[string]string {
	return compact(map[string]string{
		"cardName": f.CardName, "cardNumber": f.CardNumber, "expiry": f.Expiry,
		"cvv": f.CVV, "pin": f.PIN, "notes": f.Notes,
	})
}

// Validate checks the MM/YY expiry format when set.
func (f CardFields) Validate() error {
	if f.Expiry == "" {
		return nil
	}
	var mm, yy int
	if n, err := fmt.Sscanf(f.Expiry, "%2d/%2d", &mm, &yy); err != nil || n != 2 || len(f.Expiry) != 5 || mm < 1 || mm > 12 {
		return fmt.Errorf("%w: expiry must be MM/YY", ErrInvalidEntry)
	}
	return nil
}

func compact(m map[string]string) map[string]string {
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}

// withPassword returns f with its password replaced. Templates without a
// password are returned unchanged.
func withPassword(f Fields, password string) Fields {
	switch v := f.(type) {
	case LoginFields:
		v.Password = password
		return v
	case WifiFields:
		v.Password = password
		return v
	default:
		return f
	}
}

// CustomField is a user-defined label/value pair.
type CustomField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// PasswordChange is one superseded password.
type PasswordChange struct {
	Password string `json:"password"`
	Date     int64  `json:"date"` // ms
}

// Entry is one credential record inside a vault payload.
type Entry struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Fields          Fields           `json:"-"`
	CustomFields    []CustomField    `json:"customFields"`
	Tags            []string         `json:"tags"`
	Favorite        bool             `json:"favorite"`
	Pinned          bool             `json:"pinned"`
	Created         int64            `json:"created"`
	Modified        int64            `json:"modified"`
	PasswordHistory []PasswordChange `json:"passwordHistory,omitempty"`
}

// Type returns the template of the entry.
func (e *Entry) Type() EntryType {
	if e.Fields == nil {
		return ""
	}
	return e.Fields.Type()
}

// Password returns the entry's password field, if any.
func (e *Entry) Password() string {
	if e.Fields == nil {
		return ""
	}
	return e.Fields.Secret()
}

// Username returns the login username or identity email.
func (e *Entry) Username() string {
	switch f := e.Fields.(type) {
	case LoginFields:
		return f.Username
	case IdentityFields:
		return f.Email
	case WifiFields:
		return f.SSID
	}
	return ""
}

// URL returns the login URL.
func (e *Entry) URL() string {
	if f, ok := e.Fields.(LoginFields); ok {
		return f.URL
	}
	return ""
}

// TOTPSecret returns the login TOTP secret.
func (e *Entry) TOTPSecret() string {
	if f, ok := e.Fields.(LoginFields); ok {
		return f.TOTP
	}
	return ""
}

// Clone returns a deep copy.
func (e Entry) Clone() Entry {
	c := e
	c.CustomFields = append([]CustomField(nil), e.CustomFields...)
	c.Tags = append([]string(nil), e.Tags...)
	c.PasswordHistory = append([]PasswordChange(nil), e.PasswordHistory...)
	return c
}

// Validate checks the entry shape.
func (e *Entry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEntry)
	}
	if e.Fields == nil {
		return fmt.Errorf("%w: fields are required", ErrInvalidEntry)
	}
	return e.Fields.Validate()
}

// pushHistory records old as the newest superseded password.
func (e *Entry) pushHistory(old string, date int64) {
	h := append([]PasswordChange{{Password: old, Date: date}}, e.PasswordHistory...)
	if len(h) > MaxPasswordHistory {
		h = h[:MaxPasswordHistory]
	}
	e.PasswordHistory = h
}

type entryAlias Entry

type entryJSON struct {
	entryAlias
	Type   EntryType       `json:"type"`
	Fields json.RawMessage `json:"fields"`
}

// MarshalJSON writes the template under "type" and its fields under "fields".
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Fields == nil {
		return nil, fmt.Errorf("%w: entry %s has no fields", ErrInvalidEntry, e.ID)
	}
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return nil, err
	}
	out := entryJSON{entryAlias: entryAlias(e), Type: e.Fields.Type(), Fields: fields}
	if out.CustomFields == nil {
		out.CustomFields = []CustomField{}
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the fields into the concrete type named by "type".
func (e *Entry) UnmarshalJSON(data []byte) error {
	var in entryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	fields, err := decodeFields(in.Type, in.Fields)
	if err != nil {
		return err
	}
	*e = Entry(in.entryAlias)
	e.Fields = fields
	return nil
}

func decodeFields(t EntryType, raw json.RawMessage) (Fields, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	switch t {
	case TypeLogin:
		var f LoginFields
		err := json.Unmarshal(raw, &f)
		return f, err
	case TypeNote:
		var f NoteFields
		err := json.Unmarshal(raw, &f)
		return f, err
	case TypeWifi:
		var f WifiFields
		err := json.Unmarshal(raw, &f)
		return f, err
	case TypeIdentity:
		var f IdentityFields
		err := json.Unmarshal(raw, &f)
		return f, err
	case TypeCard:
		var f CardFields
		err := json.Unmarshal(raw, &f)
		return f, err
	default:
		return nil, fmt.Errorf("%w: unknown entry type %q", ErrInvalidEntry, t)
	}
}
