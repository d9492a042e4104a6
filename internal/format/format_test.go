package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, sample{OriginalName: "a.txt", Size: 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"original_name":"a.txt","size":3}` {
		t.Fatalf("unexpected json %q", got)
	}
}

func TestYAMLFormatterUsesJSONKeys(t *testing.T) {
	var buf bytes.Buffer
	if err := (YAMLFormatter{}).Write(&buf, []sample{{OriginalName: "a.txt", Size: 3}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "- original_name: a.txt\n  size: 3\n"
	if buf.String() != want {
		t.Fatalf("unexpected yaml:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestForName(t *testing.T) {
	for _, name := range []string{"", "json", "YAML", "yml"} {
		if _, err := ForName(name); err != nil {
			t.Fatalf("ForName(%q): %v", name, err)
		}
	}
	if _, err := ForName("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
}
