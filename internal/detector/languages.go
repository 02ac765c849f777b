package detector

import (
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Language is the grammar a configuration source file is parsed with
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageTSX        Language = "tsx"
	LanguageUnknown    Language = "unknown"
)

// LanguageForPath determines the grammar from the file extension
func LanguageForPath(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return LanguageJavaScript
	case ".ts", ".mts", ".cts":
		return LanguageTypeScript
	case ".tsx":
		return LanguageTSX
	default:
		return LanguageUnknown
	}
}

// Typed reports whether the language has static types, in which case
// substituted literals need a type escape hatch to keep the file compiling.
func (l Language) Typed() bool {
	return l == LanguageTypeScript || l == LanguageTSX
}

// languageLoader loads tree-sitter grammars
type languageLoader interface {
	LoadJavaScript() (*sitter.Language, error)
	LoadTypeScript() (*sitter.Language, error)
	LoadTSX() (*sitter.Language, error)
}

type bindingsLoader struct{}

func (bindingsLoader) LoadJavaScript() (*sitter.Language, error) {
	langPtr := tree_sitter_javascript.Language()
	if langPtr == nil {
		return nil, fmt.Errorf("failed to load JavaScript language grammar")
	}
	return sitter.NewLanguage(langPtr), nil
}

func (bindingsLoader) LoadTypeScript() (*sitter.Language, error) {
	langPtr := tree_sitter_typescript.LanguageTypescript()
	if langPtr == nil {
		return nil, fmt.Errorf("failed to load TypeScript language grammar")
	}
	return sitter.NewLanguage(langPtr), nil
}

func (bindingsLoader) LoadTSX() (*sitter.Language, error) {
	langPtr := tree_sitter_typescript.LanguageTSX()
	if langPtr == nil {
		return nil, fmt.Errorf("failed to load TSX language grammar")
	}
	return sitter.NewLanguage(langPtr), nil
}

var defaultLoader languageLoader = bindingsLoader{}

func loadLanguage(lang Language) (*sitter.Language, error) {
	switch lang {
	case LanguageJavaScript:
		return defaultLoader.LoadJavaScript()
	case LanguageTypeScript:
		return defaultLoader.LoadTypeScript()
	case LanguageTSX:
		return defaultLoader.LoadTSX()
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}
