package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jenian/ngssc/internal/detector"
	"github.com/jenian/ngssc/internal/ngssc"
	"go.uber.org/zap"
)

// TokenPrefix starts every token so it can be recognized in compiled output
const TokenPrefix = "ngssc-token-"

// Token is the opaque string literal standing in for a configuration expression
type Token struct {
	Variable   string `json:"variable"`
	Expression string `json:"expression"`
	Value      string `json:"token"`
}

// Tokenizer substitutes configuration expressions with tokens.
// The counter is owned by the instance so concurrent sessions never mint the same token.
type Tokenizer struct {
	detector *detector.Detector
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	counter uint64
}

// New creates a tokenizer using d for discovery
func New(d *detector.Detector, logger *zap.Logger) *Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if d == nil {
		d = detector.New(logger)
	}
	return &Tokenizer{
		detector: d,
		logger:   logger,
		now:      time.Now,
	}
}

// next mints a token. The counter leads so that no token is a prefix of another.
func (t *Tokenizer) next() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counter++
	return fmt.Sprintf("%s%d-%d", TokenPrefix, t.counter, t.now().UnixNano())
}

// Tokenized is the outcome of tokenizing content in memory
type Tokenized struct {
	Content   []byte
	Detection *detector.Result
	Tokens    []Token
}

type edit struct {
	span detector.Span
	text string
}

// TokenizeContent replaces every discovered expression in content with a token literal.
// Deprecated NG_ENV import paths are rewritten to the canonical path.
func (t *Tokenizer) TokenizeContent(content []byte, lang detector.Language) (*Tokenized, error) {
	detection, err := t.detector.Detect(content, lang)
	if err != nil {
		return nil, err
	}

	// Widened expressions are syntax nodes, so their spans are either disjoint,
	// identical or nested. Only the outermost of nested spans is substituted.
	candidates := make([]detector.DetectedVariable, len(detection.Variables))
	copy(candidates, detection.Variables)
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Span, candidates[j].Span
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End > b.End
	})

	var (
		edits  []edit
		tokens []Token
		end    uint
	)
	for _, variable := range candidates {
		if len(edits) > 0 && variable.Span.Start < end {
			continue
		}
		value := t.next()
		tokens = append(tokens, Token{
			Variable:   variable.Name,
			Expression: variable.Expression,
			Value:      value,
		})
		edits = append(edits, edit{span: variable.Span, text: literal(value, lang)})
		end = variable.Span.End
	}

	if detection.Variant == ngssc.VariantNgEnv && detection.VariantImport != "" {
		canonical := detector.CanonicalizeImport(detection.VariantImport)
		if detection.VariantImport != canonical {
			edits = append(edits, edit{span: detection.ImportSpan, text: canonical})
		}
	}

	if tokens == nil {
		tokens = []Token{}
	}
	return &Tokenized{
		Content:   apply(content, edits),
		Detection: detection,
		Tokens:    tokens,
	}, nil
}

// literal renders the replacement for an expression. Typed sources get an escape
// hatch so the string literal is accepted wherever the expression was.
func literal(token string, lang detector.Language) string {
	if lang.Typed() {
		return fmt.Sprintf("%q as any", token)
	}
	return fmt.Sprintf("%q", token)
}

// apply substitutes the edits back to front so earlier spans stay valid
func apply(content []byte, edits []edit) []byte {
	sort.Slice(edits, func(i, j int) bool {
		return edits[i].span.Start > edits[j].span.Start
	})
	result := make([]byte, len(content))
	copy(result, content)
	for _, e := range edits {
		tail := append([]byte(e.text), result[e.span.End:]...)
		result = append(result[:e.span.Start], tail...)
	}
	return result
}

// Session is a tokenized configuration file that can be reverted.
// It is serializable so that untokenize can run in a later process.
type Session struct {
	Path      string        `json:"path"`
	Variant   ngssc.Variant `json:"variant"`
	Variables []string      `json:"variables"`
	Tokens    []Token       `json:"tokens"`
	Original  string        `json:"original"`
	Written   bool          `json:"written"`

	mu       sync.Mutex
	reverted bool
}

// Tokenize tokenizes the file at path in place. Call Revert on the returned session
// once the compiler finished, whether it succeeded or not.
func (t *Tokenizer) Tokenize(path string) (*Session, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	lang := detector.LanguageForPath(path)
	if lang == detector.LanguageUnknown {
		lang = detector.LanguageTypeScript
	}

	tokenized, err := t.TokenizeContent(content, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize %s: %w", path, err)
	}

	session := &Session{
		Path:      path,
		Variant:   tokenized.Detection.Variant,
		Variables: tokenized.Detection.Names(),
		Tokens:    tokenized.Tokens,
		Original:  string(content),
	}
	if string(tokenized.Content) == session.Original {
		t.logger.Debug("Nothing to tokenize", zap.String("file", path))
		return session, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	session.Written = true
	if err := os.WriteFile(path, tokenized.Content, info.Mode().Perm()); err != nil {
		// A partial write must not leave the source corrupted
		return nil, errors.Join(fmt.Errorf("failed to write tokenized %s: %w", path, err), session.Revert())
	}

	t.logger.Debug("Tokenized configuration",
		zap.String("file", path),
		zap.String("variant", session.Variant.String()),
		zap.Int("tokens", len(session.Tokens)))
	return session, nil
}

// Revert restores the original content. It is idempotent and a no-op when
// nothing was written or the session is nil.
func (s *Session) Revert() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Written || s.reverted {
		return nil
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(s.Path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(s.Path, []byte(s.Original), mode); err != nil {
		return fmt.Errorf("failed to revert %s: %w", s.Path, err)
	}
	s.reverted = true
	return nil
}

// Save writes the session to path as JSON
func (s *Session) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file %s: %w", path, err)
	}
	return nil
}

// LoadSession reads a session written by Save
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file %s: %w", path, err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", path, err)
	}
	return &session, nil
}
