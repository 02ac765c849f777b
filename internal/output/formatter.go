package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jenian/ngssc/internal/build"
	"github.com/jenian/ngssc/internal/detector"
	"github.com/jenian/ngssc/internal/insert"
	"golang.org/x/term"
)

var (
	// Color support detection
	colorEnabled = initColorSupport()
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// initColorSupport initializes color support for the terminal
func initColorSupport() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	// On Windows, ANSI escape sequences must be enabled first (formatter_windows.go)
	return enableANSI(os.Stdout.Fd())
}

// SetColor overrides terminal detection
func SetColor(enabled bool) {
	colorEnabled = enabled
}

// getColor returns the color code if colors are enabled, empty string otherwise
func getColor(code string) string {
	if colorEnabled {
		return code
	}
	return ""
}

// DetectedVariable is one variable in the detect output
type DetectedVariable struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Set        bool   `json:"set"`
}

// DetectOutput represents the detect command output
type DetectOutput struct {
	File      string             `json:"file"`
	Variant   string             `json:"variant"`
	Import    string             `json:"import,omitempty"`
	Variables []DetectedVariable `json:"variables"`
}

// NewDetectOutput builds the detect output. lookup reports whether a variable is set.
func NewDetectOutput(file string, result *detector.Result, lookup func(string) (string, bool)) DetectOutput {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	out := DetectOutput{
		File:      file,
		Variant:   result.Variant.String(),
		Import:    result.VariantImport,
		Variables: []DetectedVariable{},
	}
	for _, v := range result.Variables {
		_, set := lookup(v.Name)
		out.Variables = append(out.Variables, DetectedVariable{
			Name:       v.Name,
			Expression: v.Expression,
			Set:        set,
		})
	}
	sort.SliceStable(out.Variables, func(i, j int) bool {
		return out.Variables[i].Name < out.Variables[j].Name
	})
	return out
}

// FormatDetect writes the detect output as JSON or human-readable text
func FormatDetect(w io.Writer, out DetectOutput, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(w, out)
	}

	fmt.Fprintf(w, "%sVariant:%s %s%s%s\n", getColor(colorBold), getColor(colorReset), getColor(colorCyan), out.Variant, getColor(colorReset))
	if out.Import != "" {
		fmt.Fprintf(w, "%sImport:%s  %s\n", getColor(colorBold), getColor(colorReset), out.Import)
	}
	fmt.Fprintln(w)

	if len(out.Variables) == 0 {
		fmt.Fprintf(w, "%s%sNo environment variables detected in %s.%s\n", getColor(colorYellow), getColor(colorBold), out.File, getColor(colorReset))
		return nil
	}

	fmt.Fprintf(w, "%sDetected environment variables:%s\n\n", getColor(colorBold), getColor(colorReset))
	for _, v := range out.Variables {
		status := getColor(colorGreen) + "set" + getColor(colorReset)
		if !v.Set {
			status = getColor(colorRed) + "not set" + getColor(colorReset)
		}
		fmt.Fprintf(w, "  %s%s%s (%s)\n", getColor(colorYellow), v.Name, getColor(colorReset), status)
		fmt.Fprintf(w, "    %sexpression:%s %s\n", getColor(colorGray), getColor(colorReset), truncate(v.Expression, 80))
	}
	return nil
}

// InsertOutput is one descriptor in the insert output
type InsertOutput struct {
	Source    string            `json:"source"`
	Variant   string            `json:"variant"`
	Variables map[string]string `json:"variables"`
	Files     []string          `json:"files"`
}

// FormatInsert writes the insert results. Values are redacted.
func FormatInsert(w io.Writer, results []insert.Result, dryRun, jsonOutput bool) error {
	outputs := make([]InsertOutput, 0, len(results))
	for _, result := range results {
		out := InsertOutput{
			Source:    result.Source,
			Variant:   result.Variant.String(),
			Variables: make(map[string]string, len(result.Values)),
			Files:     result.Files,
		}
		for name, value := range result.Values {
			if value == nil {
				out.Variables[name] = "null"
			} else {
				out.Variables[name] = redactValue(*value)
			}
		}
		outputs = append(outputs, out)
	}

	if jsonOutput {
		return writeJSON(w, outputs)
	}

	if dryRun {
		fmt.Fprintf(w, "%s%sDRY RUN%s Nothing will be inserted.\n\n", getColor(colorBold), getColor(colorYellow), getColor(colorReset))
	}
	for _, out := range outputs {
		fmt.Fprintf(w, "%sPopulated environment variables%s (Variant: %s, %s)\n", getColor(colorBold), getColor(colorReset), out.Variant, out.Source)
		names := make([]string, 0, len(out.Variables))
		for name := range out.Variables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s%s%s: %s%s%s\n", getColor(colorYellow), name, getColor(colorReset), getColor(colorGray), out.Variables[name], getColor(colorReset))
		}
		if len(out.Files) == 0 {
			fmt.Fprintf(w, "%sNo files found.%s\n\n", getColor(colorRed), getColor(colorReset))
			continue
		}
		verb := "Configuration inserted into"
		if dryRun {
			verb = "Configuration would be inserted into"
		}
		fmt.Fprintf(w, "%s %s%s%s\n\n", verb, getColor(colorCyan), strings.Join(out.Files, ", "), getColor(colorReset))
	}
	return nil
}

// FormatBuild writes a summary of a wrapped build
func FormatBuild(w io.Writer, result *build.Result) {
	fmt.Fprintf(w, "%s%s✓ Build wrapped successfully.%s\n", getColor(colorGreen), getColor(colorBold), getColor(colorReset))
	fmt.Fprintf(w, "  %sVariant:%s %s\n", getColor(colorGray), getColor(colorReset), result.Descriptor.Variant)
	fmt.Fprintf(w, "  %sVariables:%s %s\n", getColor(colorGray), getColor(colorReset), strings.Join(result.Descriptor.EnvironmentVariables, ", "))
	if len(result.Tokens) > 0 {
		fmt.Fprintf(w, "  %sUntokenized:%s %d file(s)\n", getColor(colorGray), getColor(colorReset), len(result.Untokenized))
	}
	for _, path := range result.Written {
		fmt.Fprintf(w, "  %sWrote:%s %s%s%s\n", getColor(colorGray), getColor(colorReset), getColor(colorCyan), path, getColor(colorReset))
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit-3]) + "..."
	}
	return s
}

// redactValue redacts sensitive values while showing the shape
func redactValue(value string) string {
	if value == "" {
		return `""`
	}
	// If it looks like a secret (long, random-looking), redact it
	if len(value) > 20 {
		return "[REDACTED]"
	}
	// If it contains special characters that suggest it's a secret
	if strings.ContainsAny(value, "=+/") && len(value) > 10 {
		return "[REDACTED]"
	}
	// For short values, show first and last char
	if runes := []rune(value); len(runes) > 4 {
		return string(runes[0]) + "..." + string(runes[len(runes)-1])
	}
	return "***"
}

// FormatError formats an error message
func FormatError(err error) string {
	return fmt.Sprintf("Error: %s\n", err)
}
