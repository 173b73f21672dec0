package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/forest6511/keysmith/pkg/vault"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"username=octo", " url =https://a=b", "notes="})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"username": "octo", "url": "https://a=b", "notes": ""}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	for _, bad := range []string{"username", "=value", " =x"} {
		if _, err := parseAssignments([]string{bad}); err == nil {
			t.Errorf("parseAssignments(%q) should fail", bad)
		}
	}
}

func TestParseCustomFields(t *testing.T) {
	got, err := parseCustomFields([]string{"PIN=1234", "Recovery=a b c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Label != "PIN" || got[1].Value != "a b c" {
		t.Errorf("got %+v", got)
	}
	if _, err := parseCustomFields([]string{"nolabel"}); err == nil {
		t.Error("expected error for missing '='")
	}
}

func TestMergeCustomFields(t *testing.T) {
	have := []vault.CustomField{{Label: "PIN", Value: "1234"}, {Label: "Hint", Value: "blue"}}

	got := mergeCustomFields(have, []vault.CustomField{
		{Label: "PIN", Value: "9999"},
		{Label: "Hint", Value: ""},
		{Label: "New", Value: "x"},
		{Label: "Absent", Value: ""},
	})

	want := []vault.CustomField{{Label: "PIN", Value: "9999"}, {Label: "New", Value: "x"}}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if have[0].Value != "1234" || len(have) != 2 {
		t.Error("mergeCustomFields modified its input")
	}
}

func TestRemoveTag(t *testing.T) {
	tags := []string{"work", "dev", "work"}
	got := removeTag(tags, "work")
	if len(got) != 1 || got[0] != "dev" {
		t.Errorf("removeTag = %v", got)
	}
	if tags[0] != "work" {
		t.Error("removeTag modified its input")
	}
}

func TestNormalizeTOTP(t *testing.T) {
	values := map[string]string{
		"totp": "otpauth://totp/Example:alice?secret=JBSWY3DPEHPK3PXP&issuer=Example",
	}
	if err := normalizeTOTP(values); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["totp"] != "JBSWY3DPEHPK3PXP" {
		t.Errorf("totp = %q", values["totp"])
	}

	if err := normalizeTOTP(map[string]string{"username": "x"}); err != nil {
		t.Errorf("no totp field: %v", err)
	}
	if err := normalizeTOTP(map[string]string{"totp": "not base32!"}); err == nil {
		t.Error("expected error for malformed secret")
	}
}

func TestPrintEntry_Masking(t *testing.T) {
	fields, err := vault.NewFields(vault.TypeLogin, map[string]string{
		"username": "octo",
		"password": "s3cret-value",
		"url":      "https://github.com",
	})
	if err != nil {
		t.Fatalf("NewFields failed: %v", err)
	}
	e := &vault.Entry{
		ID:           "id-1",
		Name:         "GitHub",
		Fields:       fields,
		CustomFields: []vault.CustomField{{Label: "PIN", Value: "4321"}},
		Tags:         []string{"dev"},
		Favorite:     true,
		PasswordHistory: []vault.PasswordChange{
			{Password: "old", Date: time.Now().UnixMilli()},
		},
	}

	var buf bytes.Buffer
	printEntry(&buf, e, false, time.Now())
	out := buf.String()
	for _, want := range []string{"★ GitHub", "octo", "https://github.com", "Tags:     dev", maskedValue, "1 previous passwords"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, leak := range []string{"s3cret-value", "4321"} {
		if strings.Contains(out, leak) {
			t.Errorf("masked output contains %q", leak)
		}
	}

	buf.Reset()
	printEntry(&buf, e, true, time.Now())
	out = buf.String()
	if !strings.Contains(out, "s3cret-value") || !strings.Contains(out, "4321") {
		t.Errorf("revealed output missing values:\n%s", out)
	}
}

func TestEntryMarks(t *testing.T) {
	tests := []struct {
		e    vault.Entry
		want string
	}{
		{vault.Entry{}, ""},
		{vault.Entry{Favorite: true}, "★ "},
		{vault.Entry{Pinned: true}, "📌"},
		{vault.Entry{Pinned: true, Favorite: true}, "📌★ "},
	}
	for _, tt := range tests {
		if got := entryMarks(&tt.e); got != tt.want {
			t.Errorf("entryMarks(fav=%v pin=%v) = %q, want %q", tt.e.Favorite, tt.e.Pinned, got, tt.want)
		}
	}
}

func TestFieldFlags(t *testing.T) {
	tests := []struct {
		field vault.TemplateField
		want  string
	}{
		{vault.TemplateField{Name: "notes"}, "optional"},
		{vault.TemplateField{Name: "password", Required: true, Sensitive: true}, "required, sensitive"},
		{vault.TemplateField{Name: "security", Required: true, Options: []string{"WPA", "WEP"}}, "required, one of WPA/WEP"},
	}
	for _, tt := range tests {
		if got := fieldFlags(tt.field); got != tt.want {
			t.Errorf("fieldFlags(%s) = %q, want %q", tt.field.Name, got, tt.want)
		}
	}
}
