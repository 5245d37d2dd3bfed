package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-dev/rxstore/pkg/storage"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "storage error",
			code:    "RX002",
			wantMsg: "Backend operation failed",
			wantCat: CategoryStorage,
		},
		{
			name:    "protocol error",
			code:    "RX040",
			wantMsg: "Relay connection failed",
			wantCat: CategoryProtocol,
		},
		{
			name:    "config error",
			code:    "RX081",
			wantMsg: "Invalid config file",
			wantCat: CategoryConfig,
		},
		{
			name:    "unknown error code",
			code:    "RX999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	cause := stderrors.New("disk full")
	err := New("RX002").Wrap(cause)

	if got := err.Error(); got != "RX002: Backend operation failed: disk full" {
		t.Errorf("Error() = %q", got)
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is did not reach the wrapped cause")
	}
	if got := Newf(CategoryCLI, "bad flag %q", "x").Error(); got != `bad flag "x"` {
		t.Errorf("Newf Error() = %q", got)
	}
}

func TestFromStorage(t *testing.T) {
	tests := []struct {
		kind error
		want string
	}{
		{storage.ErrBackend, "RX002"},
		{storage.ErrDecode, "RX003"},
		{storage.ErrEncode, "RX004"},
		{storage.ErrDisposed, "RX005"},
	}
	for _, tt := range tests {
		err := storage.Wrap("get", "k", tt.kind, stderrors.New("cause"))
		if got := FromStorage(err); got.Code != tt.want {
			t.Errorf("FromStorage(%v).Code = %q, want %q", tt.kind, got.Code, tt.want)
		}
	}

	coded := New("RX010")
	if FromStorage(fmt.Errorf("outer: %w", coded)) != coded {
		t.Error("FromStorage did not keep an existing *Error")
	}
	if FromStorage(nil) != nil {
		t.Error("FromStorage(nil) != nil")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "RX002") != nil {
		t.Error("FromError(nil) != nil")
	}
	err := FromError(stderrors.New("x"), "RX040")
	if err.Code != "RX040" || err.Wrapped == nil {
		t.Errorf("FromError = %+v", err)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	path := filepath.Join(t.TempDir(), "rxstore.json")
	content := "{\n  \"table\": \"settings\",\n  \"backend\": \"sqlite\",,\n}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	err := New("RX081").WithLocation(path, 3, 23).WithSuggestion("Remove the trailing comma")
	out := err.Format()

	for _, want := range []string{
		"ERROR RX081: Invalid config file",
		path + ":3:23",
		"→    3 │   \"backend\": \"sqlite\",,",
		"Hint: Remove the trailing comma",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
	if len(err.Context) != 3 {
		t.Errorf("Context = %d lines, want 3", len(err.Context))
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("RX082")
	err.Location = &Location{File: "rxstore.json", Line: 2}
	if got := err.FormatCompact(); got != "rxstore.json:2: RX082: Invalid config value" {
		t.Errorf("FormatCompact() = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("RX003").Wrap(stderrors.New("bad char"))

	var out map[string]any
	if jerr := json.Unmarshal([]byte(err.FormatJSON()), &out); jerr != nil {
		t.Fatalf("FormatJSON is not JSON: %v", jerr)
	}
	if out["code"] != "RX003" || out["category"] != "storage" || out["cause"] != "bad char" {
		t.Errorf("FormatJSON = %v", out)
	}
	if _, ok := out["location"]; ok {
		t.Error("location present without WithLocation")
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five", 9)
	if strings.Join(lines, "|") != "one two|three|four five" {
		t.Errorf("wrapText = %q", lines)
	}
	if wrapText("", 10) != nil {
		t.Error("wrapText of empty text is not nil")
	}
}

func TestCodes(t *testing.T) {
	codes := Codes()
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Fatalf("Codes not sorted: %v", codes)
		}
	}
	for _, code := range codes {
		tpl, ok := Lookup(code)
		if !ok || tpl.Message == "" || tpl.Category == "" {
			t.Errorf("template %s incomplete: %+v", code, tpl)
		}
	}
}
