package vault

import (
	"fmt"
	"sort"
	"strings"
)

// Template describes the field schema of an entry type.
type Template struct {
	Type        EntryType
	Description string
	Fields      []TemplateField
}

// TemplateField defines a field in a template.
type TemplateField struct {
	Name      string
	Prompt    string
	Sensitive bool
	Required  bool
	InputType string   // "text" (default) | "textarea" | "select"
	Options   []string // for "select"
}

// Templates is the closed set of entry templates, in display order.
var Templates = []Template{
	{
		Type:        TypeLogin,
		Description: "Website or service login (username, password, url, totp)",
		Fields: []TemplateField{
			{Name: "username", Prompt: "Username", Required: true},
			{Name: "password", Prompt: "Password", Sensitive: true, Required: true},
			{Name: "url", Prompt: "Website URL", Required: true},
			{Name: "totp", Prompt: "TOTP secret (base32 or otpauth:// URI)", Sensitive: true},
			{Name: "notes", Prompt: "Notes", InputType: "textarea"},
		},
	},
	{
		Type:        TypeNote,
		Description: "Secure note",
		Fields: []TemplateField{
			{Name: "content", Prompt: "Content", Sensitive: true, Required: true, InputType: "textarea"},
		},
	},
	{
		Type:        TypeWifi,
		Description: "Wi-Fi network (ssid, password, security)",
		Fields: []TemplateField{
			{Name: "ssid", Prompt: "Network name (SSID)", Required: true},
			{Name: "password", Prompt: "Password", Sensitive: true, Required: true},
			{Name: "security", Prompt: "Security", Required: true, InputType: "select", Options: WifiSecurityModes},
			{Name: "notes", Prompt: "Notes", InputType: "textarea"},
		},
	},
	{
		Type:        TypeIdentity,
		Description: "Identity (name, email, phone, address)",
		Fields: []TemplateField{
			{Name: "firstName", Prompt: "First name", Required: true},
			{Name: "lastName", Prompt: "Last name", Required: true},
			{Name: "email", Prompt: "Email", Required: true},
			{Name: "phone", Prompt: "Phone", Required: true},
			{Name: "address", Prompt: "Address", InputType: "textarea"},
			{Name: "notes", Prompt: "Notes", InputType: "textarea"},
		},
	},
	{
		Type:        TypeCard,
		Description: "Payment card (number, expiry, cvv)",
		Fields: []TemplateField{
			{Name: "cardName", Prompt: "Name on card", Required: true},
			{Name: "cardNumber", Prompt: "Card number", Sensitive: true, Required: true},
			{Name: "expiry", Prompt: "Expiry (MM/YY)", Required: true},
			{Name: "cvv", Prompt: "CVV", Sensitive: true, Required: true},
			{Name: "pin", Prompt: "PIN", Sensitive: true},
			{Name: "notes", Prompt: "Notes", InputType: "textarea"},
		},
	},
}

// TemplateFor returns the template for t.
func TemplateFor(t EntryType) (Template, bool) {
	for _, tpl := range Templates {
		if tpl.Type == t {
			return tpl, true
		}
	}
	return Template{}, false
}

// NewFields builds typed fields for t from name/value pairs. Unknown names
// and missing required values are rejected.
func NewFields(t EntryType, values map[string]string) (Fields, error) {
	tpl, ok := TemplateFor(t)
	if !ok {
		return nil, fmt.Errorf("%w: unknown entry type %q", ErrInvalidEntry, t)
	}

	known := make(map[string]bool, len(tpl.Fields))
	for _, tf := range tpl.Fields {
		known[tf.Name] = true
		if tf.Required && strings.TrimSpace(values[tf.Name]) == "" {
			return nil, fmt.Errorf("%w: %s requires %s", ErrInvalidEntry, t, tf.Name)
		}
	}
	var unknown []string
	for name := range values {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s has no field %s", ErrInvalidEntry, t, strings.Join(unknown, ", "))
	}

	v := values
	var f Fields
	switch t {
	case TypeLogin:
		f = LoginFields{Username: v["username"], Password: v["password"], URL: v["url"], TOTP: v["totp"], Notes: v["notes"]}
	case TypeNote:
		f = NoteFields{Content: v["content"]}
	case TypeWifi:
		f = WifiFields{SSID: v["ssid"], Password: v["password"], Security: v["security"], Notes: v["notes"]}
	case TypeIdentity:
		f = IdentityFields{FirstName: v["firstName"], LastName: v["lastName"], Email: v["email"], Phone: v["phone"], Address: v["address"], Notes: v["notes"]}
	case TypeCard:
		f = CardFields{CardName: v["cardName"], CardNumber: v["cardNumber"], Expiry: v["expiry"], CVV: v["cvv"], PIN: v["pin"], Notes: v["notes"]}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// MergeFields overlays values onto f, keeping f's type. An empty value
// clears the field.
func MergeFields(f Fields, values map[string]string) (Fields, error) {
	merged := f.Values()
	for k, v := range values {
		merged[k] = v
	}
	return NewFields(f.Type(), compact(merged))
}
