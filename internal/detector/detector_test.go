package detector

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jenian/ngssc/internal/ngssc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const processEnvironment = `
import 'angular-server-side-configuration/process';

/**
 * How to use angular-server-side-configuration:
 *
 * Use process.env.NAME_OF_YOUR_ENVIRONMENT_VARIABLE
 *
 * export const environment = {
 *   stringValue: process.env.STRING_VALUE,
 *   numberValue: Number(process.env.NUMBER_VALUE),
 * };
 */

export const environment = {
  production: process.env.PROD !== 'false',
  apiBackend: process.env.API_BACKEND || 'http://example.com',
  ternary: process.env.TERNARY ? 'asdf' : 'qwer',
  simpleValue: process.env.SIMPLE_VALUE,
  something: {
    asdf: process.env.OMG || 'omg',
    qwer: parseInt(process.env.NUMBER || ''),
  }
};
`

const ngEnvEnvironment = `
import { NG_ENV } from 'angular-server-side-configuration/ng-env';

export const environment = {
  production: NG_ENV.PROD !== 'false',
  apiBackend: NG_ENV.API_BACKEND || 'http://example.com',
  ternary: NG_ENV.TERNARY ? 'asdf' : 'qwer',
  simpleValue: NG_ENV.SIMPLE_VALUE,
  something: {
    asdf: NG_ENV.OMG || 'omg',
    qwer: parseInt(NG_ENV.NUMBER || ''),
  }
};
`

func expressionsByName(result *Result) map[string]string {
	expressions := make(map[string]string)
	for _, v := range result.Variables {
		expressions[v.Name] = v.Expression
	}
	return expressions
}

func newObservedDetector() (*Detector, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return New(zap.New(core)), logs
}

func TestDetector_ProcessVariables(t *testing.T) {
	result, err := New(nil).Detect([]byte(processEnvironment), LanguageTypeScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if result.Variant != ngssc.VariantProcess {
		t.Errorf("Expected variant process, got %s", result.Variant)
	}
	if result.VariantImport != "import 'angular-server-side-configuration/process';" {
		t.Errorf("Unexpected variant import: %q", result.VariantImport)
	}

	expected := map[string]string{
		"API_BACKEND":  `process.env.API_BACKEND || 'http://example.com'`,
		"NUMBER":       `parseInt(process.env.NUMBER || '')`,
		"OMG":          `process.env.OMG || 'omg'`,
		"PROD":         `process.env.PROD !== 'false'`,
		"SIMPLE_VALUE": `process.env.SIMPLE_VALUE`,
		"TERNARY":      `process.env.TERNARY ? 'asdf' : 'qwer'`,
	}
	if len(result.Variables) != len(expected) {
		t.Fatalf("Expected %d variables, got %d: %v", len(expected), len(result.Variables), result.Variables)
	}
	if got := expressionsByName(result); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestDetector_SpansMatchExpressions(t *testing.T) {
	content := []byte(processEnvironment)
	result, err := New(nil).Detect(content, LanguageTypeScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	for _, v := range result.Variables {
		if got := string(content[v.Span.Start:v.Span.End]); got != v.Expression {
			t.Errorf("Span of %s covers %q, expected %q", v.Name, got, v.Expression)
		}
	}
}

func TestDetector_NgEnvVariables(t *testing.T) {
	result, err := New(nil).Detect([]byte(ngEnvEnvironment), LanguageTypeScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if result.Variant != ngssc.VariantNgEnv {
		t.Errorf("Expected variant NG_ENV, got %s", result.Variant)
	}
	if result.VariantImport != "import { NG_ENV } from 'angular-server-side-configuration/ng-env';" {
		t.Errorf("Unexpected variant import: %q", result.VariantImport)
	}

	expected := map[string]string{
		"API_BACKEND":  `NG_ENV.API_BACKEND || 'http://example.com'`,
		"NUMBER":       `parseInt(NG_ENV.NUMBER || '')`,
		"OMG":          `NG_ENV.OMG || 'omg'`,
		"PROD":         `NG_ENV.PROD !== 'false'`,
		"SIMPLE_VALUE": `NG_ENV.SIMPLE_VALUE`,
		"TERNARY":      `NG_ENV.TERNARY ? 'asdf' : 'qwer'`,
	}
	if got := expressionsByName(result); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestDetector_DeprecatedNgEnvImport(t *testing.T) {
	content := strings.Replace(ngEnvEnvironment, "/ng-env'", "/ng4-env'", 1)
	result, err := New(nil).Detect([]byte(content), LanguageTypeScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if result.Variant != ngssc.VariantNgEnv {
		t.Errorf("Expected variant NG_ENV, got %s", result.Variant)
	}
	if len(result.Variables) != 6 {
		t.Errorf("Expected 6 variables, got %d", len(result.Variables))
	}
}

func TestDetector_ElementAccess(t *testing.T) {
	code := "import { NG_ENV } from 'angular-server-side-configuration/ng-env';\n" +
		"export const environment = {\n" +
		"  a: NG_ENV['SINGLE'],\n" +
		"  b: NG_ENV[\"DOUBLE\"] || 'x',\n" +
		"  c: NG_ENV[`TEMPLATE`],\n" +
		"};\n"

	result, err := New(nil).Detect([]byte(code), LanguageTypeScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	expected := map[string]string{
		"SINGLE":   `NG_ENV['SINGLE']`,
		"DOUBLE":   `NG_ENV["DOUBLE"] || 'x'`,
		"TEMPLATE": "NG_ENV[`TEMPLATE`]",
	}
	if got := expressionsByName(result); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestDetector_JavaScript(t *testing.T) {
	code := `
module.exports = {
  api: process.env['API_URL'] || 'http://localhost',
  url: ` + "`${process.env.HOST}/api`" + `,
  list: [process.env.FIRST, process.env.SECOND],
};
`
	result, err := New(nil).Detect([]byte(code), LanguageJavaScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	expected := map[string]string{
		"API_URL": `process.env['API_URL'] || 'http://localhost'`,
		"HOST":    "`${process.env.HOST}/api`",
		"FIRST":   "process.env.FIRST",
		"SECOND":  "process.env.SECOND",
	}
	if got := expressionsByName(result); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestDetector_DynamicAccessIsSkipped(t *testing.T) {
	code := `
const key = 'X';
export const environment = {
  dynamic: process.env[key],
  prefixed: process.env['PREFIX_' + key],
  static: process.env.STATIC,
};
`
	d, logs := newObservedDetector()
	result, err := d.Detect([]byte(code), LanguageTypeScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if got := result.Names(); !reflect.DeepEqual(got, []string{"STATIC"}) {
		t.Errorf("Expected only STATIC, got %v", got)
	}
	if logs.Len() != 2 {
		t.Fatalf("Expected 2 warnings, got %d", logs.Len())
	}
	for _, entry := range logs.All() {
		if err, ok := entry.ContextMap()["error"]; !ok || err != ErrUnsupportedDynamicAccess.Error() {
			t.Errorf("Expected unsupported dynamic access warning, got %v", entry.ContextMap())
		}
	}
}

func TestDetector_MixedVariants(t *testing.T) {
	code := `
import { NG_ENV } from 'angular-server-side-configuration/ng-env';

export const environment = {
  a: NG_ENV.FROM_NG_ENV,
  b: process.env.FROM_PROCESS,
};
`
	d, logs := newObservedDetector()
	result, err := d.Detect([]byte(code), LanguageTypeScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if result.Variant != ngssc.VariantNgEnv {
		t.Errorf("Expected variant NG_ENV, got %s", result.Variant)
	}
	if got := result.Names(); !reflect.DeepEqual(got, []string{"FROM_NG_ENV"}) {
		t.Errorf("Expected only FROM_NG_ENV, got %v", got)
	}
	if logs.FilterMessageSnippet("Detected both").Len() != 1 {
		t.Errorf("Expected a mixed variant warning, got %v", logs.All())
	}
}

func TestDetector_OnlyOtherVariantUsed(t *testing.T) {
	code := `
import { NG_ENV } from 'angular-server-side-configuration/ng-env';

export const environment = {
  b: process.env.FROM_PROCESS,
};
`
	d, logs := newObservedDetector()
	result, err := d.Detect([]byte(code), LanguageTypeScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(result.Variables) != 0 {
		t.Errorf("Expected no variables, got %v", result.Names())
	}
	if logs.FilterMessageSnippet("Detected both").Len() != 0 {
		t.Errorf("Expected no mixed variant warning, got %v", logs.All())
	}
}

func TestDetector_InvalidVariantImport(t *testing.T) {
	code := `import 'angular-server-side-configuration/unknown';
export const environment = { a: process.env.A };
`
	_, err := New(nil).Detect([]byte(code), LanguageTypeScript)
	if !errors.Is(err, ErrInvalidVariantImport) {
		t.Fatalf("Expected ErrInvalidVariantImport, got %v", err)
	}
}

func TestDetector_PackageImportIsNotAVariant(t *testing.T) {
	code := `import { Ngssc } from 'angular-server-side-configuration';
export const environment = { a: process.env.A };
`
	result, err := New(nil).Detect([]byte(code), LanguageTypeScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if result.Variant != ngssc.VariantProcess || result.VariantImport != "" {
		t.Errorf("Expected process variant without import, got %s %q", result.Variant, result.VariantImport)
	}
}

func TestDetector_NoUsages(t *testing.T) {
	result, err := New(nil).Detect([]byte("export const environment = { production: true };\n"), LanguageTypeScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if result.Variant != ngssc.VariantProcess {
		t.Errorf("Expected default variant process, got %s", result.Variant)
	}
	if len(result.Variables) != 0 {
		t.Errorf("Expected no variables, got %v", result.Variables)
	}
}

func TestDetector_ParseError(t *testing.T) {
	_, err := New(nil).Detect([]byte("export const environment = {\n  a: process.env.A,\n"), LanguageTypeScript)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("Expected ErrParse, got %v", err)
	}
}

func TestDetector_LongestFirst(t *testing.T) {
	code := `
export const environment = {
  a: process.env.A,
  b: process.env.A || 'fallback',
  c: process.env.LONGER_NAME,
};
`
	result, err := New(nil).Detect([]byte(code), LanguageTypeScript)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	var got []string
	for _, v := range result.Variables {
		got = append(got, v.Expression)
	}
	expected := []string{
		"process.env.LONGER_NAME",
		"process.env.A || 'fallback'",
		"process.env.A",
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected order %v, got %v", expected, got)
	}
	if names := result.Names(); !reflect.DeepEqual(names, []string{"A", "LONGER_NAME"}) {
		t.Errorf("Expected de-duplicated names, got %v", names)
	}
}

func TestDetector_DetectFile(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "environment.prod.ts")
	if err := os.WriteFile(filePath, []byte(processEnvironment), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	result, err := New(nil).DetectFile(filePath)
	if err != nil {
		t.Fatalf("DetectFile failed: %v", err)
	}
	if len(result.Variables) != 6 {
		t.Errorf("Expected 6 variables, got %d", len(result.Variables))
	}

	if _, err := New(nil).DetectFile(filepath.Join(tmpDir, "missing.ts")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestLanguageForPath(t *testing.T) {
	tests := []struct {
		path     string
		expected Language
	}{
		{"environment.ts", LanguageTypeScript},
		{"environment.mts", LanguageTypeScript},
		{"environment.tsx", LanguageTSX},
		{"environment.js", LanguageJavaScript},
		{"environment.mjs", LanguageJavaScript},
		{"environment.json", LanguageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := LanguageForPath(tt.path); got != tt.expected {
				t.Errorf("LanguageForPath(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestCanonicalizeImport(t *testing.T) {
	tests := []struct {
		statement string
		expected  string
	}{
		{
			"import 'angular-server-side-configuration/ng4-env';",
			"import 'angular-server-side-configuration/ng-env';",
		},
		{
			`import { NG_ENV } from "angular-server-side-configuration/ng4-env";`,
			`import { NG_ENV } from "angular-server-side-configuration/ng-env";`,
		},
		{
			"import { NG_ENV } from 'angular-server-side-configuration/ng-env';",
			"import { NG_ENV } from 'angular-server-side-configuration/ng-env';",
		},
	}

	for _, tt := range tests {
		if result := CanonicalizeImport(tt.statement); result != tt.expected {
			t.Errorf("CanonicalizeImport(%q) = %q, want %q", tt.statement, result, tt.expected)
		}
	}
}
