package insert

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jenian/ngssc/internal/ngssc"
)

var (
	markerPattern      = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(ngssc.MarkerStart) + `.*?` + regexp.QuoteMeta(ngssc.MarkerEnd))
	placeholderPattern = regexp.MustCompile(`<!--\s*CONFIG\s*-->`)
	configPattern      = regexp.MustCompile(`(?s)<!--\s*CONFIG\s*(\{.*?\})\s*-->`)
)

// Apply inserts block into html. An existing block is replaced, then the
// <!--CONFIG--> placeholder, then the block goes after </title> or before </head>.
// With inHead the placeholder is not considered. It reports false, returning html
// unchanged, when none of these insertion points exists.
func Apply(html, block string, inHead bool) (string, bool) {
	if loc := markerPattern.FindStringIndex(html); loc != nil {
		return html[:loc[0]] + block + html[loc[1]:], true
	}
	if !inHead {
		if loc := placeholderPattern.FindStringIndex(html); loc != nil {
			return html[:loc[0]] + block + html[loc[1]:], true
		}
	}
	if strings.Contains(html, "</title>") {
		return strings.Replace(html, "</title>", "</title>"+block, 1), true
	}
	if strings.Contains(html, "</head>") {
		return strings.Replace(html, "</head>", block+"</head>", 1), true
	}
	return html, false
}

// embeddedConfig reads the descriptor from a <!--CONFIG {...}--> comment.
// It returns the descriptor and the end offset of the comment.
func embeddedConfig(html, source string) (*ngssc.Descriptor, int, error) {
	loc := configPattern.FindStringSubmatchIndex(html)
	if loc == nil {
		return nil, 0, fmt.Errorf("%w: no <!--CONFIG {...}--> comment in %s", ngssc.ErrInvalidDescriptor, source)
	}
	descriptor, err := ngssc.ParseDescriptor([]byte(html[loc[2]:loc[3]]), source)
	if err != nil {
		return nil, 0, err
	}
	return descriptor, loc[1], nil
}

// applyAfterConfig inserts block directly after the embedded config comment,
// replacing an earlier block wherever it is
func applyAfterConfig(html, block string, configEnd int) string {
	if loc := markerPattern.FindStringIndex(html); loc != nil {
		return html[:loc[0]] + block + html[loc[1]:]
	}
	return html[:configEnd] + block + html[configEnd:]
}

// ReplaceTagAttribute sets attribute on every tag element in html,
// for attributes quoted with either " or '
func ReplaceTagAttribute(html, tag, attribute, value string) string {
	tagPattern := regexp.MustCompile(`<` + regexp.QuoteMeta(tag) + `(\s[^>]*)?>`)
	attributePattern := regexp.MustCompile(`(\s` + regexp.QuoteMeta(attribute) + `=)("[^"]*"|'[^']*')`)
	return tagPattern.ReplaceAllStringFunc(html, func(element string) string {
		return attributePattern.ReplaceAllStringFunc(element, func(match string) string {
			parts := attributePattern.FindStringSubmatch(match)
			quote := parts[2][:1]
			return parts[1] + quote + value + quote
		})
	})
}
