package detector

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jenian/ngssc/internal/ngssc"
	sitter "github.com/tree-sitter/go-tree-sitter"
	"go.uber.org/zap"
)

// NamespaceModule is the module whose sub paths declare the configuration variant
const NamespaceModule = "angular-server-side-configuration"

var (
	// ErrParse is returned when the configuration source cannot be parsed
	ErrParse = errors.New("failed to parse configuration source")
	// ErrInvalidVariantImport is returned for namespace imports of an unknown module path
	ErrInvalidVariantImport = errors.New("could not detect variant")
	// ErrUnsupportedDynamicAccess marks element accesses with a non literal key.
	// It is only ever logged.
	ErrUnsupportedDynamicAccess = errors.New("unsupported dynamic access")
)

// variantImports maps namespace module paths to the variant they declare.
// ng4-env is the deprecated spelling of ng-env.
var variantImports = map[string]ngssc.Variant{
	NamespaceModule + "/process": ngssc.VariantProcess,
	NamespaceModule + "/ng-env":  ngssc.VariantNgEnv,
	NamespaceModule + "/ng4-env": ngssc.VariantNgEnv,
}

// deprecatedImports maps deprecated namespace module paths to their canonical path
var deprecatedImports = map[string]string{
	NamespaceModule + "/ng4-env": NamespaceModule + "/ng-env",
}

// CanonicalizeImport rewrites deprecated module paths in an import statement,
// keeping its import clause
func CanonicalizeImport(statement string) string {
	for deprecated, canonical := range deprecatedImports {
		for _, q := range []string{"'", `"`} {
			statement = strings.ReplaceAll(statement, q+deprecated+q, q+canonical+q)
		}
	}
	return statement
}

// Span is a byte range in the source
type Span struct {
	Start uint
	End   uint
}

// DetectedVariable is one configuration access together with its enclosing expression
type DetectedVariable struct {
	Name       string // key accessed off the namespace root
	Expression string // source text of the outermost enclosing expression
	Span       Span   // location of Expression in the source
}

// Result is the outcome of detecting a single configuration source
type Result struct {
	Variant       ngssc.Variant
	VariantImport string // exact text of the variant declaring import, empty if none
	ImportSpan    Span
	Variables     []DetectedVariable
}

// Names returns the de-duplicated variable names in alphabetical order
func (r *Result) Names() []string {
	seen := make(map[string]bool, len(r.Variables))
	names := make([]string, 0, len(r.Variables))
	for _, v := range r.Variables {
		if !seen[v.Name] {
			seen[v.Name] = true
			names = append(names, v.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Detector finds configuration namespace usages in JavaScript and TypeScript sources
type Detector struct {
	languages map[Language]*sitter.Language
	mu        sync.RWMutex
	logger    *zap.Logger
}

// New creates a detector logging warnings to logger, which may be nil
func New(logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		languages: make(map[Language]*sitter.Language),
		logger:    logger,
	}
}

// getLanguage returns a grammar for the language, loading it if needed
func (d *Detector) getLanguage(lang Language) (*sitter.Language, error) {
	d.mu.RLock()
	if language, ok := d.languages[lang]; ok {
		d.mu.RUnlock()
		return language, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock
	if language, ok := d.languages[lang]; ok {
		return language, nil
	}

	language, err := loadLanguage(lang)
	if err != nil {
		return nil, fmt.Errorf("failed to load language %s: %w", lang, err)
	}

	d.languages[lang] = language
	return language, nil
}

// DetectFile reads and detects the file at path, choosing the grammar by extension
func (d *Detector) DetectFile(path string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	lang := LanguageForPath(path)
	if lang == LanguageUnknown {
		lang = LanguageTypeScript
	}
	return d.Detect(content, lang)
}

// Detect parses content and returns the variant and every configuration access
func (d *Detector) Detect(content []byte, lang Language) (*Result, error) {
	language, err := d.getLanguage(lang)
	if err != nil {
		return nil, err
	}

	// A parser per call: tree-sitter parsers must not be shared across goroutines
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("%w: no syntax tree produced", ErrParse)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("%w: no syntax tree produced", ErrParse)
	}
	if root.HasError() {
		at := "unknown position"
		if errNode := firstError(root); errNode != nil {
			at = location(errNode)
		}
		return nil, fmt.Errorf("%w: syntax error at %s", ErrParse, at)
	}

	result := &Result{Variant: ngssc.VariantProcess}
	if err := detectVariant(root, content, result); err != nil {
		return nil, err
	}

	usages := make(map[ngssc.Variant][]DetectedVariable)
	walk(root, func(node *sitter.Node) {
		if node.Kind() != "identifier" {
			return
		}
		var (
			variant ngssc.Variant
			object  *sitter.Node
		)
		switch node.Utf8Text(content) {
		case ngssc.VariantProcess.NamespaceRoot():
			variant, object = ngssc.VariantProcess, processEnv(node, content)
		case ngssc.VariantNgEnv.NamespaceRoot():
			variant, object = ngssc.VariantNgEnv, node
		default:
			return
		}
		if object == nil {
			return
		}
		if variable, ok := d.extract(object, content); ok {
			usages[variant] = append(usages[variant], variable)
		}
	})

	other := ngssc.VariantNgEnv
	if result.Variant == ngssc.VariantNgEnv {
		other = ngssc.VariantProcess
	}
	if len(usages[result.Variant]) > 0 && len(usages[other]) > 0 {
		d.logger.Warn(fmt.Sprintf(
			"Detected both process.env.* and NG_ENV.* variables with selected variant %s. "+
				"Only the variables matching the current variant will be used.", result.Variant),
			zap.Strings("ignored", names(usages[other])))
	}

	result.Variables = usages[result.Variant]
	if result.Variables == nil {
		result.Variables = []DetectedVariable{}
	}
	sortLongestFirst(result.Variables)
	return result, nil
}

// detectVariant scans top-level imports for a namespace module import
func detectVariant(root *sitter.Node, content []byte, result *Result) error {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		node := root.NamedChild(i)
		if node == nil || node.Kind() != "import_statement" {
			continue
		}
		source := node.ChildByFieldName("source")
		if source == nil {
			continue
		}
		path := trimQuotes(source.Utf8Text(content))
		if !strings.HasPrefix(path, NamespaceModule+"/") {
			continue
		}
		variant, ok := variantImports[path]
		if !ok {
			return fmt.Errorf("%w from import '%s' (expected either %s/process or %s/ng-env)",
				ErrInvalidVariantImport, path, NamespaceModule, NamespaceModule)
		}
		result.Variant = variant
		result.VariantImport = node.Utf8Text(content)
		result.ImportSpan = Span{Start: node.StartByte(), End: node.EndByte()}
		return nil
	}
	return nil
}

// processEnv resolves a process identifier to its enclosing process.env access
func processEnv(node *sitter.Node, content []byte) *sitter.Node {
	parent := node.Parent()
	if parent == nil || parent.Kind() != "member_expression" || !isObjectOf(parent, node) {
		return nil
	}
	property := parent.ChildByFieldName("property")
	if property == nil || property.Utf8Text(content) != "env" {
		return nil
	}
	return parent
}

// extract resolves the access made on object (process.env or NG_ENV) and widens it
// to its outermost enclosing expression
func (d *Detector) extract(object *sitter.Node, content []byte) (DetectedVariable, bool) {
	access := object.Parent()
	if access == nil || !isObjectOf(access, object) {
		// import specifiers, declarations and bare references
		return DetectedVariable{}, false
	}

	var name string
	switch access.Kind() {
	case "member_expression":
		property := access.ChildByFieldName("property")
		if property == nil {
			return DetectedVariable{}, false
		}
		name = property.Utf8Text(content)
	case "subscript_expression":
		key, ok := staticKey(access.ChildByFieldName("index"), content)
		if !ok {
			d.logger.Warn("Unable to resolve variable. Please use direct assignment.",
				zap.String("expression", access.Utf8Text(content)),
				zap.String("location", location(access)),
				zap.Error(ErrUnsupportedDynamicAccess))
			return DetectedVariable{}, false
		}
		name = key
	default:
		return DetectedVariable{}, false
	}

	expression := widen(access)
	return DetectedVariable{
		Name:       name,
		Expression: expression.Utf8Text(content),
		Span:       Span{Start: expression.StartByte(), End: expression.EndByte()},
	}, true
}

// sortLongestFirst orders by name length, then expression length, both descending,
// so that no expression is substituted before a longer one containing it
func sortLongestFirst(variables []DetectedVariable) {
	sort.SliceStable(variables, func(i, j int) bool {
		a, b := variables[i], variables[j]
		if len(a.Name) != len(b.Name) {
			return len(a.Name) > len(b.Name)
		}
		if len(a.Expression) != len(b.Expression) {
			return len(a.Expression) > len(b.Expression)
		}
		return a.Span.Start < b.Span.Start
	})
}

func names(variables []DetectedVariable) []string {
	result := make([]string, 0, len(variables))
	for _, v := range variables {
		result = append(result, v.Name)
	}
	return result
}
