package labels

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const defaultPassLimit = 8

type aliasRule interface {
	Rewrite(label string) (string, bool)
}

// RuleParser parses one line of an alias file.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (aliasRule, error)
}

// Aliases maps labels reported by a recognition model onto the labels used
// by lessons, e.g. "thank_you" onto "thank you". The zero value is the
// identity mapping.
type Aliases struct {
	rules     []aliasRule
	passLimit int
}

// Load reads alias rules from path. A blank path or a missing file yields an
// empty rule set.
func Load(path string) (*Aliases, error) {
	if strings.TrimSpace(path) == "" {
		return &Aliases{}, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Aliases{}, nil
		}
		return nil, fmt.Errorf("failed to read label rules %q: %w", path, err)
	}
	aliases, err := Parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse label rules %q: %w", path, err)
	}
	return aliases, nil
}

// Parse compiles alias rules. Each non-comment line is either
// "alias => canonical", which replaces a whole label, or "s/pattern/replacement/flags".
func Parse(contents string) (*Aliases, error) {
	return ParseWithParsers(contents, defaultParsers())
}

func ParseWithParsers(contents string, parsers []RuleParser) (*Aliases, error) {
	if len(parsers) == 0 {
		parsers = defaultParsers()
	}
	lines := strings.Split(contents, "\n")
	rules := make([]aliasRule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var rule aliasRule
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			parsed, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			rule = parsed
			break
		}
		if rule == nil {
			return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
		}
		rules = append(rules, rule)
	}

	return &Aliases{rules: rules, passLimit: defaultPassLimit}, nil
}

// Len reports the number of compiled rules.
func (a *Aliases) Len() int {
	if a == nil {
		return 0
	}
	return len(a.rules)
}

// Normalize rewrites label until no rule applies or the pass limit is hit.
func (a *Aliases) Normalize(label string) string {
	if a == nil || len(a.rules) == 0 {
		return label
	}
	limit := a.passLimit
	if limit <= 0 {
		limit = defaultPassLimit
	}

	result := strings.TrimSpace(label)
	for pass := 0; pass < limit; pass++ {
		changed := false
		for _, rule := range a.rules {
			if next, ok := rule.Rewrite(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result
}

func defaultParsers() []RuleParser {
	return []RuleParser{substitutionParser{}, aliasParser{}}
}

type aliasParser struct{}

func (aliasParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (aliasParser) Parse(line string) (aliasRule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("alias cannot be empty")
	}
	if to == "" {
		return nil, errors.New("canonical label cannot be empty")
	}
	return wholeLabelRule{from: from, to: to}, nil
}

// wholeLabelRule matches the entire label, ignoring case.
type wholeLabelRule struct {
	from string
	to   string
}

func (r wholeLabelRule) Rewrite(label string) (string, bool) {
	if !strings.EqualFold(label, r.from) || label == r.to {
		return label, false
	}
	return r.to, true
}

type substitutionParser struct{}

func (substitutionParser) CanParse(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordOrSpace(line[1])
}

func (substitutionParser) Parse(line string) (aliasRule, error) {
	delim := line[1]
	pattern, pos, err := readDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	replacement, pos, err := readDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid replacement: %w", err)
	}

	prefix := "(?i)"
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i', ' ':
		case 'I':
			prefix = ""
		default:
			return nil, fmt.Errorf("unsupported flag %q", flag)
		}
	}

	re, err := regexp.Compile(prefix + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return substitutionRule{re: re, replacement: replacement}, nil
}

type substitutionRule struct {
	re          *regexp.Regexp
	replacement string
}

func (r substitutionRule) Rewrite(label string) (string, bool) {
	output := r.re.ReplaceAllString(label, r.replacement)
	return output, output != label
}

func readDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case escaped:
			if char != delim {
				builder.WriteByte('\\')
			}
			builder.WriteByte(char)
			escaped = false
		case char == '\\':
			escaped = true
		case char == delim:
			return builder.String(), index + 1, nil
		default:
			builder.WriteByte(char)
		}
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordOrSpace(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '_' || char == ' ' || char == '\t'
}
