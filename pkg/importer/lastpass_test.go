package importer

import (
	"testing"

	"github.com/forest6511/keysmith/pkg/vault"
)

func TestLastPassParser_Source(t *testing.T) {
	p := &LastPassParser{}
	if p.Source() != SourceLastPass {
		t.Errorf("Source() = %q, want %q", p.Source(), SourceLastPass)
	}
}

func TestLastPassParser_ParseLogin(t *testing.T) {
	csvData := "\xEF\xBB\xBFurl,username,password,totp,extra,name,grouping,fav\n" +
		"https://github.com,johndoe,p&amp;ss,JBSWY3DPEHPK3PXP,backup codes,GitHub,Work\\Dev,1\n"

	result, err := (&LastPassParser{}).Parse([]byte(csvData), ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("Entries count = %d, want 1", len(result.Entries))
	}
	assertValidEntries(t, result.Entries)

	e := result.Entries[0]
	want := vault.LoginFields{
		Username: "johndoe",
		Password: "p&ss",
		URL:      "https://github.com",
		TOTP:     "JBSWY3DPEHPK3PXP",
		Notes:    "backup codes",
	}
	if f := e.Fields.(vault.LoginFields); f != want {
		t.Errorf("Fields = %+v, want %+v", f, want)
	}
	if e.Name != "GitHub" || !e.Favorite {
		t.Errorf("Name = %q, Favorite = %v", e.Name, e.Favorite)
	}
	if len(e.Tags) != 1 || e.Tags[0] != `Work\Dev` {
		t.Errorf("Tags = %v, want [Work\\Dev]", e.Tags)
	}
}

func TestLastPassParser_SecureNote(t *testing.T) {
	csvData := "url,username,password,totp,extra,name,grouping,fav\n" +
		"http://sn,,,,wifi code 1234,Home,,0\n" +
		"http://sn,,,,,Blank,,0\n"

	result, err := (&LastPassParser{}).Parse([]byte(csvData), ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("Entries count = %d, want 1", len(result.Entries))
	}
	e := result.Entries[0]
	if f, ok := e.Fields.(vault.NoteFields); !ok || f.Content != "wifi code 1234" {
		t.Errorf("Fields = %+v, want note", e.Fields)
	}
	if e.Favorite {
		t.Error("Favorite = true, want false")
	}
	if len(result.Skipped) != 1 || result.Skipped[0].OriginalName != "Blank" {
		t.Errorf("Skipped = %+v", result.Skipped)
	}
}

func TestLastPassParser_Rows(t *testing.T) {
	csvData := "url,username,password,totp,extra,name,grouping,fav\n" +
		"https://a.example,,,,,,,0\n" + // no useful data
		"https://www.b.example/login,bob,pw,,,,,0\n" + // fallback name
		"too,few,columns\n"

	result, err := (&LastPassParser{}).Parse([]byte(csvData), ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Name != "b.example" {
		t.Fatalf("Entries = %+v, want one entry named b.example", result.Entries)
	}
	if len(result.Skipped) != 1 {
		t.Errorf("Skipped = %+v, want 1", result.Skipped)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("Warnings = %v, want column count warning", result.Warnings)
	}
}

func TestLastPassParser_HeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"missing name column", "url,username,password\nhttps://x,u,p\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (&LastPassParser{}).Parse([]byte(tt.data), ParseOptions{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLastPassParser_HeaderCaseInsensitive(t *testing.T) {
	csvData := "URL,Username,Password,TOTP,Extra,Name,Grouping,Fav\n" +
		"https://x.example,u,p,,,X,,0\n"
	result, err := (&LastPassParser{}).Parse([]byte(csvData), ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Password() != "p" {
		t.Errorf("Entries = %+v", result.Entries)
	}
}
