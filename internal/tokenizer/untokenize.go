package tokenizer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jenian/ngssc/internal/scanner"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds how many output files are untokenized at once
const DefaultWorkers = 10

// Untokenizer rewrites tokens found in compiled output back into expressions
type Untokenizer struct {
	scanner *scanner.Scanner
	logger  *zap.Logger
	workers int
}

// NewUntokenizer creates an untokenizer discovering output files with s
func NewUntokenizer(s *scanner.Scanner, logger *zap.Logger) *Untokenizer {
	if s == nil {
		s = scanner.NewScanner()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Untokenizer{
		scanner: s,
		logger:  logger,
		workers: DefaultWorkers,
	}
}

// SetWorkers sets the number of files processed concurrently
func (u *Untokenizer) SetWorkers(workers int) {
	if workers > 0 {
		u.workers = workers
	}
}

// Untokenize replaces every token occurrence in content with its expression.
// content is lexed to find the string literal holding each occurrence: a token
// forming the whole literal becomes the expression, otherwise the literal is split
// with its own delimiter around the parenthesized expression. Occurrences outside
// of string literals are logged and left untouched.
func (u *Untokenizer) Untokenize(content string, tokens []Token) string {
	if len(tokens) == 0 || !strings.Contains(content, TokenPrefix) {
		return content
	}
	known := longestFirst(tokens)

	out := make([]byte, 0, len(content))
	stack := []frame{{start: -1}}
	for i := 0; i < len(content); {
		top := &stack[len(stack)-1]
		c := content[i]

		if top.quote == 0 {
			switch {
			case c == '"' || c == '\'' || c == '`':
				stack = append(stack, frame{quote: c, start: i})
			case strings.HasPrefix(content[i:], "//"):
				end := strings.IndexByte(content[i:], '\n')
				if end < 0 {
					end = len(content)
				} else {
					end += i
				}
				u.unresolved(content[i:end], known)
				out = append(out, content[i:end]...)
				i = end
				continue
			case strings.HasPrefix(content[i:], "/*"):
				end := strings.Index(content[i+2:], "*/")
				if end < 0 {
					end = len(content)
				} else {
					end += i + 4
				}
				u.unresolved(content[i:end], known)
				out = append(out, content[i:end]...)
				i = end
				continue
			case c == '/' && regexAllowed(content, i):
				end := regexEnd(content, i)
				out = append(out, content[i:end]...)
				i = end
				continue
			case c == '{':
				top.depth++
			case c == '}':
				if top.depth > 0 {
					top.depth--
				} else if len(stack) > 1 {
					// end of a ${...} substitution, back inside the template
					stack = stack[:len(stack)-1]
					stack[len(stack)-1].start = -1
				}
			case c == 'n':
				if token, ok := matchToken(content[i:], known); ok {
					u.unresolved(token.Value, known)
					out = append(out, token.Value...)
					i += len(token.Value)
					continue
				}
			}
			out = append(out, c)
			i++
			continue
		}

		switch {
		case c == '\\' && i+1 < len(content):
			out = append(out, content[i:i+2]...)
			i += 2
			continue
		case c == top.quote:
			stack = stack[:len(stack)-1]
		case c == '\n' && top.quote != '`':
			// unterminated literal
			stack = stack[:len(stack)-1]
		case top.quote == '`' && strings.HasPrefix(content[i:], "${"):
			stack = append(stack, frame{start: -1})
			out = append(out, "${"...)
			i += 2
			continue
		case c == 'n':
			token, ok := matchToken(content[i:], known)
			if !ok {
				break
			}
			end := i + len(token.Value)
			q := string(top.quote)
			grouped := "(" + token.Expression + ")"
			opening := top.start == i-1
			closing := end < len(content) && content[end] == top.quote
			switch {
			case opening && closing:
				out = append(out[:len(out)-1], token.Expression...)
			case opening:
				out = append(out[:len(out)-1], grouped+" + "+q...)
			case closing:
				out = append(out, q+" + "+grouped...)
			default:
				out = append(out, q+" + "+grouped+" + "+q...)
			}
			if closing {
				stack = stack[:len(stack)-1]
				end++
			}
			i = end
			continue
		}
		out = append(out, c)
		i++
	}
	return string(out)
}

// frame is one level of literal nesting while lexing a bundle
type frame struct {
	quote byte // delimiter of a string literal, 0 for code and ${...} substitutions
	start int  // offset of the opening delimiter, -1 when the literal continues after a substitution
	depth int  // braces opened inside a substitution
}

// unresolved logs every token found in text, which lies outside of any string literal
func (u *Untokenizer) unresolved(text string, tokens []Token) {
	for _, token := range tokens {
		for n := strings.Count(text, token.Value); n > 0; n-- {
			u.logger.Warn("Unable to untokenize occurrence without enclosing string literal",
				zap.String("token", token.Value),
				zap.String("variable", token.Variable))
		}
		text = strings.ReplaceAll(text, token.Value, "")
	}
}

func longestFirst(tokens []Token) []Token {
	known := make([]Token, 0, len(tokens))
	for _, token := range tokens {
		if token.Value != "" {
			known = append(known, token)
		}
	}
	sort.SliceStable(known, func(i, j int) bool {
		return len(known[i].Value) > len(known[j].Value)
	})
	return known
}

func matchToken(s string, tokens []Token) (Token, bool) {
	if !strings.HasPrefix(s, TokenPrefix) {
		return Token{}, false
	}
	for _, token := range tokens {
		if strings.HasPrefix(s, token.Value) {
			return token, true
		}
	}
	return Token{}, false
}

// regexKeywords may directly precede a regular expression literal
var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "case": true, "do": true, "else": true, "in": true,
	"of": true, "new": true, "delete": true, "void": true, "throw": true,
	"instanceof": true, "yield": true, "await": true,
}

// regexAllowed reports whether a slash at index starts a regular expression
// literal rather than a division, judged by the preceding token
func regexAllowed(content string, index int) bool {
	j := index - 1
	for j >= 0 && (content[j] == ' ' || content[j] == '\t' || content[j] == '\n' || content[j] == '\r') {
		j--
	}
	if j < 0 {
		return true
	}
	if strings.IndexByte("(,=:[!&|?{};+-*%<>~^", content[j]) >= 0 {
		return true
	}
	k := j
	for k >= 0 && isIdentByte(content[k]) {
		k--
	}
	return k < j && regexKeywords[content[k+1:j+1]]
}

// regexEnd returns the offset after the regular expression literal at index, including
// its flags. A literal running into a line break is treated as a plain slash.
func regexEnd(content string, index int) int {
	inClass := false
	for j := index + 1; j < len(content); j++ {
		switch content[j] {
		case '\\':
			j++
		case '\n':
			return index + 1
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if inClass {
				continue
			}
			j++
			for j < len(content) && isIdentByte(content[j]) {
				j++
			}
			return j
		}
	}
	return index + 1
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// UntokenizeFile rewrites the file at path, reporting whether it changed
func (u *Untokenizer) UntokenizeFile(path string, tokens []Token) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := string(data)
	if !strings.Contains(content, TokenPrefix) {
		return false, nil
	}

	result := u.Untokenize(content, tokens)
	if result == content {
		return false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(result), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

// UntokenizeDir untokenizes every compiled script below root and returns the changed files.
// Each file is an independent read-modify-write, so files are processed concurrently.
func (u *Untokenizer) UntokenizeDir(ctx context.Context, root string, tokens []Token) ([]string, error) {
	files, err := u.scanner.Bundles(root)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return []string{}, nil
	}

	var (
		mu      sync.Mutex
		changed = []string{}
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for _, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ok, err := u.UntokenizeFile(file, tokens)
			if err != nil {
				return err
			}
			if ok {
				u.logger.Debug("Untokenized file", zap.String("file", file))
				mu.Lock()
				changed = append(changed, file)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to untokenize %s: %w", root, err)
	}

	sort.Strings(changed)
	return changed, nil
}
