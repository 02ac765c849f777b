package output

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/jenian/ngssc/internal/detector"
	"github.com/jenian/ngssc/internal/insert"
	"github.com/jenian/ngssc/internal/ngssc"
)

func init() {
	SetColor(false)
}

func detection() *detector.Result {
	return &detector.Result{
		Variant:       ngssc.VariantNgEnv,
		VariantImport: "import { NG_ENV } from 'angular-server-side-configuration/ng-env';",
		Variables: []detector.DetectedVariable{
			{Name: "TERNARY", Expression: "NG_ENV.TERNARY ? 'a' : 'b'"},
			{Name: "API", Expression: "NG_ENV.API || 'http://localhost'"},
		},
	}
}

func TestFormatDetect_HumanReadable(t *testing.T) {
	out := NewDetectOutput("environment.ts", detection(), func(name string) (string, bool) {
		return "", name == "API"
	})

	var buf bytes.Buffer
	if err := FormatDetect(&buf, out, false); err != nil {
		t.Fatalf("FormatDetect failed: %v", err)
	}

	expected := `Variant: NG_ENV
Import:  import { NG_ENV } from 'angular-server-side-configuration/ng-env';

Detected environment variables:

  API (set)
    expression: NG_ENV.API || 'http://localhost'
  TERNARY (not set)
    expression: NG_ENV.TERNARY ? 'a' : 'b'
`
	if buf.String() != expected {
		t.Errorf("Unexpected output:\n%s\nwant:\n%s", buf.String(), expected)
	}
}

func TestFormatDetect_JSON(t *testing.T) {
	out := NewDetectOutput("environment.ts", detection(), func(string) (string, bool) { return "", false })

	var buf bytes.Buffer
	if err := FormatDetect(&buf, out, true); err != nil {
		t.Fatalf("FormatDetect failed: %v", err)
	}

	var decoded DetectOutput
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not JSON: %v", err)
	}
	if decoded.Variant != "NG_ENV" || len(decoded.Variables) != 2 || decoded.Variables[0].Name != "API" {
		t.Errorf("Unexpected JSON output: %s", buf.String())
	}
}

func TestFormatDetect_NoVariables(t *testing.T) {
	out := NewDetectOutput("environment.ts", &detector.Result{Variant: ngssc.VariantProcess}, nil)

	var buf bytes.Buffer
	if err := FormatDetect(&buf, out, false); err != nil {
		t.Fatalf("FormatDetect failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No environment variables detected in environment.ts.") {
		t.Errorf("Unexpected output: %s", buf.String())
	}
}

func TestFormatInsert(t *testing.T) {
	secret := "a-very-long-secret-value-of-many-chars"
	short := "prod"
	results := []insert.Result{{
		Source:  "dist/ngssc.json",
		Variant: ngssc.VariantProcess,
		Values:  ngssc.Values{"SECRET": &secret, "SHORT": &short, "UNSET": nil},
		Files:   []string{"dist/index.html"},
	}}

	var buf bytes.Buffer
	if err := FormatInsert(&buf, results, true, false); err != nil {
		t.Fatalf("FormatInsert failed: %v", err)
	}

	output := buf.String()
	for _, expected := range []string{
		"DRY RUN Nothing will be inserted.",
		"(Variant: process, dist/ngssc.json)",
		"  SECRET: [REDACTED]",
		"  SHORT: ***",
		"  UNSET: null",
		"Configuration would be inserted into dist/index.html",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("Expected output to contain %q, got:\n%s", expected, output)
		}
	}
	if strings.Contains(output, secret) {
		t.Error("Secret value leaked into output")
	}
}

func TestRedactValue(t *testing.T) {
	tests := []struct {
		value    string
		expected string
	}{
		{"", `""`},
		{"abc", "***"},
		{"hello", "h...o"},
		{"äbcdé", "ä...é"},
		{"abc=def+ghij", "[REDACTED]"},
		{"012345678901234567890", "[REDACTED]"},
	}

	for _, tt := range tests {
		if result := redactValue(tt.value); result != tt.expected {
			t.Errorf("redactValue(%q) = %q, want %q", tt.value, result, tt.expected)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		limit    int
		expected string
	}{
		{"short", "process.env.A", 20, "process.env.A"},
		{"whitespace collapsed", "a ||\n   b", 20, "a || b"},
		{"ascii", "abcdefghij", 8, "abcde..."},
		{"multi-byte runes", "ääääääääää", 8, "äääää..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncate(tt.value, tt.limit)
			if result != tt.expected {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.value, tt.limit, result, tt.expected)
			}
			if !utf8.ValidString(result) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.value, tt.limit)
			}
		})
	}
}
