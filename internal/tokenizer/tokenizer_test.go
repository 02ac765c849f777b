package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jenian/ngssc/internal/detector"
	"github.com/jenian/ngssc/internal/ngssc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const processEnvironment = `import 'angular-server-side-configuration/process';

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

const tokenizedProcessEnvironment = `import 'angular-server-side-configuration/process';

export const environment = {
  production: "ngssc-token-1-42" as any,
  apiBackend: "ngssc-token-2-42" as any,
  ternary: "ngssc-token-3-42" as any,
  simpleValue: "ngssc-token-4-42" as any,
  something: {
    asdf: "ngssc-token-5-42" as any,
    qwer: "ngssc-token-6-42" as any,
  }
};
`

const ngEnvEnvironment = `import { NG_ENV } from 'angular-server-side-configuration/ng4-env';

export const environment = {
  production: NG_ENV.PROD !== 'false',
  apiBackend: NG_ENV['API_BACKEND'] || 'http://example.com',
};
`

func newTestTokenizer() *Tokenizer {
	tokenizer := New(nil, nil)
	tokenizer.now = func() time.Time { return time.Unix(0, 42) }
	return tokenizer
}

func TestTokenizeContent_TypeScript(t *testing.T) {
	tokenized, err := newTestTokenizer().TokenizeContent([]byte(processEnvironment), detector.LanguageTypeScript)
	require.NoError(t, err)

	assert.Equal(t, tokenizedProcessEnvironment, string(tokenized.Content))
	assert.Equal(t, ngssc.VariantProcess, tokenized.Detection.Variant)
	require.Len(t, tokenized.Tokens, 6)

	expected := []Token{
		{Variable: "PROD", Expression: "process.env.PROD !== 'false'", Value: "ngssc-token-1-42"},
		{Variable: "API_BACKEND", Expression: "process.env.API_BACKEND || 'http://example.com'", Value: "ngssc-token-2-42"},
		{Variable: "TERNARY", Expression: "process.env.TERNARY ? 'asdf' : 'qwer'", Value: "ngssc-token-3-42"},
		{Variable: "SIMPLE_VALUE", Expression: "process.env.SIMPLE_VALUE", Value: "ngssc-token-4-42"},
		{Variable: "OMG", Expression: "process.env.OMG || 'omg'", Value: "ngssc-token-5-42"},
		{Variable: "NUMBER", Expression: "parseInt(process.env.NUMBER || '')", Value: "ngssc-token-6-42"},
	}
	assert.Equal(t, expected, tokenized.Tokens)
}

func TestTokenizeContent_JavaScript(t *testing.T) {
	source := "export const api = process.env.API || 'http://localhost';\n"
	tokenized, err := newTestTokenizer().TokenizeContent([]byte(source), detector.LanguageJavaScript)
	require.NoError(t, err)

	assert.Equal(t, "export const api = \"ngssc-token-1-42\";\n", string(tokenized.Content))
}

func TestTokenizeContent_NgEnvCanonicalizesImport(t *testing.T) {
	tokenized, err := newTestTokenizer().TokenizeContent([]byte(ngEnvEnvironment), detector.LanguageTypeScript)
	require.NoError(t, err)

	content := string(tokenized.Content)
	assert.True(t, strings.HasPrefix(content,
		"import { NG_ENV } from 'angular-server-side-configuration/ng-env';\n"), content)
	assert.NotContains(t, content, "ng4-env")
	assert.NotContains(t, content, "NG_ENV.PROD")
	assert.NotContains(t, content, "NG_ENV['API_BACKEND']")
	assert.Equal(t, ngssc.VariantNgEnv, tokenized.Detection.Variant)
	assert.Len(t, tokenized.Tokens, 2)
}

func TestTokenizeContent_SharedAndNestedExpressions(t *testing.T) {
	source := `export const environment = {
  either: process.env.FIRST || process.env.SECOND,
  lazy: process.env.FLAG ? () => process.env.INNER : null,
};
`
	tokenized, err := newTestTokenizer().TokenizeContent([]byte(source), detector.LanguageTypeScript)
	require.NoError(t, err)

	expected := `export const environment = {
  either: "ngssc-token-1-42" as any,
  lazy: "ngssc-token-2-42" as any,
};
`
	assert.Equal(t, expected, string(tokenized.Content))
	require.Len(t, tokenized.Tokens, 2)
	assert.Equal(t, "process.env.FIRST || process.env.SECOND", tokenized.Tokens[0].Expression)
	assert.Equal(t, "process.env.FLAG ? () => process.env.INNER : null", tokenized.Tokens[1].Expression)
	assert.Equal(t, []string{"FIRST", "FLAG", "INNER", "SECOND"}, tokenized.Detection.Names())
}

func TestTokenizeContent_NoUsages(t *testing.T) {
	source := "export const environment = { production: true };\n"
	tokenized, err := newTestTokenizer().TokenizeContent([]byte(source), detector.LanguageTypeScript)
	require.NoError(t, err)

	assert.Equal(t, source, string(tokenized.Content))
	assert.Empty(t, tokenized.Tokens)
	assert.NotNil(t, tokenized.Tokens)
}

func TestTokenizeContent_ParseError(t *testing.T) {
	_, err := newTestTokenizer().TokenizeContent([]byte("export const = {"), detector.LanguageTypeScript)
	assert.ErrorIs(t, err, detector.ErrParse)
}

func TestTokenizer_UniqueTokens(t *testing.T) {
	tokenizer := New(nil, nil)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens = make(map[string]bool)
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token := tokenizer.next()
			mu.Lock()
			tokens[token] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, tokens, 50)
	for token := range tokens {
		assert.True(t, strings.HasPrefix(token, TokenPrefix))
	}
}

func TestTokenize_RevertRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "environment.ts")
	require.NoError(t, os.WriteFile(path, []byte(processEnvironment), 0644))

	session, err := newTestTokenizer().Tokenize(path)
	require.NoError(t, err)
	assert.True(t, session.Written)
	assert.Equal(t, []string{"API_BACKEND", "NUMBER", "OMG", "PROD", "SIMPLE_VALUE", "TERNARY"}, session.Variables)

	tokenized, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, tokenizedProcessEnvironment, string(tokenized))

	require.NoError(t, session.Revert())
	reverted, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, processEnvironment, string(reverted))

	// Reverting again must not touch the file
	require.NoError(t, os.WriteFile(path, []byte("changed after revert"), 0644))
	require.NoError(t, session.Revert())
	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "changed after revert", string(current))
}

func TestTokenize_NothingToTokenize(t *testing.T) {
	source := "export const environment = {};\n"
	path := filepath.Join(t.TempDir(), "environment.ts")
	require.NoError(t, os.WriteFile(path, []byte(source), 0644))

	session, err := newTestTokenizer().Tokenize(path)
	require.NoError(t, err)
	assert.False(t, session.Written)
	require.NoError(t, session.Revert())
}

func TestTokenize_MissingFile(t *testing.T) {
	_, err := newTestTokenizer().Tokenize(filepath.Join(t.TempDir(), "missing.ts"))
	assert.Error(t, err)
}

func TestSession_RevertNil(t *testing.T) {
	var session *Session
	assert.NoError(t, session.Revert())
}

func TestSession_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "environment.ts")
	require.NoError(t, os.WriteFile(path, []byte(processEnvironment), 0644))

	session, err := newTestTokenizer().Tokenize(path)
	require.NoError(t, err)

	tokenFile := filepath.Join(tmpDir, "ngssc-tokens.json")
	require.NoError(t, session.Save(tokenFile))

	loaded, err := LoadSession(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, session.Tokens, loaded.Tokens)
	assert.Equal(t, session.Variables, loaded.Variables)
	assert.Equal(t, ngssc.VariantProcess, loaded.Variant)

	require.NoError(t, loaded.Revert())
	reverted, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, processEnvironment, string(reverted))
}
