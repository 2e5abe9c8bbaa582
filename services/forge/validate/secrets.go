// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
)

// TokenPattern is a provider-specific credential shape found inside string
// literals regardless of the name they are bound to.
type TokenPattern struct {
	Name       string
	Pattern    string
	MinEntropy float64
}

// TokenPatterns returns the built-in provider token shapes.
func TokenPatterns() []TokenPattern {
	return []TokenPattern{
		{Name: "AWS access key id", Pattern: `AKIA[0-9A-Z]{16}`, MinEntropy: 3.0},
		{Name: "Stripe live key", Pattern: `sk_live_[0-9a-zA-Z]{24,}`, MinEntropy: 3.5},
		{Name: "OpenAI API key", Pattern: `sk-(?:proj-)?[A-Za-z0-9_-]{32,}`, MinEntropy: 3.5},
		{Name: "GitHub token", Pattern: `gh[pousr]_[A-Za-z0-9_]{36,}`, MinEntropy: 3.5},
		{Name: "Slack token", Pattern: `xox[baprs]-[A-Za-z0-9-]{10,}`, MinEntropy: 3.0},
		{Name: "private key block", Pattern: `-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`},
		{Name: "connection string with password", Pattern: `(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s'":/@]+:[^\s'"@]{6,}@`},
	}
}

type compiledToken struct {
	TokenPattern
	re *regexp.Regexp
}

// SecretDetector flags literal values that look like embedded credentials.
//
// Three checks run over the tree:
//   - credential-shaped names (password, api_key, token, ...) bound to a
//     string or numeric literal in assignments, keyword arguments,
//     dictionary entries and parameter defaults. A default= keyword takes
//     the name of the assignment its call is bound to. Names that merely
//     end in key need a secret-shaped string value.
//   - provider token shapes inside any string literal
//   - name=value or name: value pairs inside a string literal, matched
//     across the whole literal so multi-line blocks are seen as one unit
//
// Values matching template syntax or placeholder idioms are ignored, as are
// values shorter than six characters. Issue messages never contain the value.
type SecretDetector struct {
	tokens []compiledToken
}

// NewSecretDetector compiles the built-in token patterns.
func NewSecretDetector() SecretDetector {
	d := SecretDetector{}
	for _, p := range TokenPatterns() {
		d.tokens = append(d.tokens, compiledToken{TokenPattern: p, re: regexp.MustCompile(p.Pattern)})
	}
	return d
}

// Name implements Detector.
func (SecretDetector) Name() string { return DetectorSecrets }

// Detect implements Detector.
func (d SecretDetector) Detect(a *artifact.Artifact, _ Shape) []Issue {
	root, err := a.Root()
	if err != nil {
		return nil
	}

	var issues []Issue
	reported := make(map[uint32]bool)

	artifact.Walk(root, func(n *sitter.Node) bool {
		var nameNode, valueNode *sitter.Node
		switch n.Type() {
		case "assignment":
			nameNode, valueNode = n.ChildByFieldName("left"), n.ChildByFieldName("right")
		case "keyword_argument", "default_parameter", "typed_default_parameter":
			nameNode, valueNode = n.ChildByFieldName("name"), n.ChildByFieldName("value")
		case "pair":
			nameNode, valueNode = n.ChildByFieldName("key"), n.ChildByFieldName("value")
		}
		if nameNode == nil || valueNode == nil {
			return true
		}

		name := boundName(a, nameNode)
		if n.Type() == "keyword_argument" && name == "default" {
			name = callBinding(a, n)
		}
		value, numeric, ok := literalValue(a, valueNode)
		if !ok {
			return true
		}
		if !credentialName(name) {
			if !keyName(name) || numeric || !secretShaped(value) || d.matchToken(value) != "" {
				return true
			}
		}
		if numeric && !numericCredential(name, value) {
			return true
		}
		if !numeric && placeholderValue(value) {
			return true
		}
		reported[valueNode.StartByte()] = true
		issues = append(issues, secretIssue(valueNode,
			fmt.Sprintf("literal value assigned to %q looks like a credential (%d characters, value elided)", name, len(value)),
			name))
		return true
	})

	artifact.Walk(root, func(n *sitter.Node) bool {
		if n.Type() != "string" {
			return true
		}
		if reported[n.StartByte()] {
			return false
		}
		issues = append(issues, d.scanString(a, n)...)
		return false
	})
	return issues
}

// scanString inspects one string literal as a single unit.
func (d SecretDetector) scanString(a *artifact.Artifact, n *sitter.Node) []Issue {
	body := artifact.StringValue(a.Content(n))
	if tok := d.matchToken(body); tok != "" {
		return []Issue{secretIssue(n,
			fmt.Sprintf("string literal contains a %s (value elided)", tok), "")}
	}

	if isDocstring(n) {
		return nil
	}
	var issues []Issue
	for _, m := range embeddedPairRe.FindAllStringSubmatchIndex(body, -1) {
		name, value := body[m[2]:m[3]], body[m[4]:m[5]]
		if !(credentialName(name) || keyName(name)) || placeholderValue(value) || !secretShaped(value) {
			continue
		}
		issue := secretIssue(n,
			fmt.Sprintf("string literal embeds a value for %q that looks like a credential (%d characters, value elided)", name, len(value)),
			name)
		issue.Line += strings.Count(body[:m[2]], "\n")
		issues = append(issues, issue)
	}
	return issues
}

// matchToken returns the name of the first provider token shape in body,
// or "".
func (d SecretDetector) matchToken(body string) string {
	for _, tok := range d.tokens {
		m := tok.re.FindString(body)
		if m == "" || (tok.MinEntropy > 0 && calculateEntropy(m) < tok.MinEntropy) {
			continue
		}
		return tok.Name
	}
	return ""
}

var embeddedPairRe = regexp.MustCompile(`(?m)(?:^|[\s,;{&?])["']?([A-Za-z_][A-Za-z0-9_.-]*)["']?\s*[:=]\s*["']?([^\s"',;&}]+)`)

func secretIssue(n *sitter.Node, msg, element string) Issue {
	return Issue{
		Kind:     KindInsecureLiteral,
		Severity: SeverityCritical,
		Message:  msg,
		Line:     int(n.StartPoint().Row) + 1,
		Column:   int(n.StartPoint().Column) + 1,
		Detector: DetectorSecrets,
		Element:  element,
	}
}

// boundName returns the identifier a value is bound to.
func boundName(a *artifact.Artifact, n *sitter.Node) string {
	switch n.Type() {
	case "identifier":
		return a.Content(n)
	case "attribute":
		return a.Content(n.ChildByFieldName("attribute"))
	case "string":
		return artifact.StringValue(a.Content(n))
	case "subscript":
		if idx := n.ChildByFieldName("subscript"); idx != nil && idx.Type() == "string" {
			return artifact.StringValue(a.Content(idx))
		}
	}
	return ""
}

// callBinding names the target of the assignment whose value is the call
// holding the keyword argument kw, as in api_key = Field(default="...").
func callBinding(a *artifact.Artifact, kw *sitter.Node) string {
	args := kw.Parent()
	if args == nil || args.Type() != "argument_list" {
		return ""
	}
	call := args.Parent()
	if call == nil || call.Type() != "call" {
		return ""
	}
	stmt := call.Parent()
	if stmt == nil || stmt.Type() != "assignment" {
		return ""
	}
	if right := stmt.ChildByFieldName("right"); right == nil || right.StartByte() != call.StartByte() {
		return ""
	}
	left := stmt.ChildByFieldName("left")
	if left == nil {
		return ""
	}
	return boundName(a, left)
}

// literalValue extracts a literal string or integer value. Strings with
// interpolations are templates and are not literal values.
func literalValue(a *artifact.Artifact, n *sitter.Node) (value string, numeric, ok bool) {
	switch n.Type() {
	case "integer":
		return strings.ReplaceAll(a.Content(n), "_", ""), true, true
	case "string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "interpolation" {
				return "", false, false
			}
		}
		return artifact.StringValue(a.Content(n)), false, true
	case "concatenated_string":
		var sb strings.Builder
		for i := 0; i < int(n.NamedChildCount()); i++ {
			part, _, ok := literalValue(a, n.NamedChild(i))
			if !ok {
				return "", false, false
			}
			sb.WriteString(part)
		}
		return sb.String(), false, true
	}
	return "", false, false
}

var credentialWords = []string{
	"password", "passwd", "passphrase", "secret", "token", "apikey", "accesskey",
	"privatekey", "signingkey", "encryptionkey", "credential", "bearer", "sessionkey",
}

var credentialTokens = map[string]bool{"pwd": true, "pin": true, "auth": true}

// nonSecretTokens mark names that describe a credential rather than hold one.
var nonSecretTokens = map[string]bool{
	"count": true, "limit": true, "max": true, "min": true, "len": true, "length": true,
	"size": true, "url": true, "uri": true, "endpoint": true, "type": true, "name": true,
	"header": true, "file": true, "path": true, "dir": true, "env": true, "var": true,
	"field": true, "prefix": true, "format": true, "pattern": true, "regex": true,
	"timeout": true, "ttl": true, "expiry": true, "expires": true, "kind": true,
	"mode": true, "label": true, "id": true, "scheme": true, "policy": true,
}

// credentialName reports whether an identifier names a credential.
func credentialName(name string) bool {
	tokens := nameTokens(name)
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if nonSecretTokens[t] {
			return false
		}
	}
	joined := strings.Join(tokens, "")
	for _, w := range credentialWords {
		if strings.Contains(joined, w) {
			return true
		}
	}
	for _, t := range tokens {
		if credentialTokens[t] {
			return true
		}
	}
	return false
}

// keyQualifiers mark key names that index or identify data rather than
// hold a credential.
var keyQualifiers = map[string]bool{
	"public": true, "primary": true, "foreign": true, "sort": true, "cache": true,
	"partition": true, "lookup": true, "group": true, "index": true, "map": true,
	"dict": true, "order": true, "row": true, "column": true, "routing": true,
	"shard": true, "lock": true, "unique": true, "idempotency": true, "object": true,
	"dedup": true, "cursor": true, "hot": true, "join": true, "storage": true,
}

// keyName reports whether an identifier is key-shaped: key itself or a name
// ending in key, such as master_key or clientKey.
func keyName(name string) bool {
	tokens := nameTokens(name)
	if len(tokens) == 0 || tokens[len(tokens)-1] != "key" {
		return false
	}
	for _, t := range tokens {
		if nonSecretTokens[t] || keyQualifiers[t] {
			return false
		}
	}
	return true
}

// nameTokens splits snake, kebab, dotted and camel case names into lower
// case words.
func nameTokens(name string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return tokens
}

func numericCredential(name, digits string) bool {
	if len(digits) < 6 {
		return false
	}
	joined := strings.Join(nameTokens(name), "")
	for _, w := range []string{"password", "passwd", "secret", "pin", "pwd"} {
		if strings.Contains(joined, w) {
			return true
		}
	}
	return false
}

var templateValueRes = []*regexp.Regexp{
	regexp.MustCompile(`^\$\{[^}]*\}$`),
	regexp.MustCompile(`^\$[A-Za-z_][A-Za-z0-9_]*$`),
	regexp.MustCompile(`^\{\{.*\}\}$`),
	regexp.MustCompile(`^\{[A-Za-z_][A-Za-z0-9_]*\}$`),
	regexp.MustCompile(`^%\([^)]*\)[sd]$`),
	regexp.MustCompile(`^<[^>]*>$`),
}

var placeholderIdioms = []string{
	"your_", "your-", "yourkey", "yoursecret", "yourpassword", "yourtoken",
	"change_me", "changeme", "change-me", "replace_me", "replaceme", "replace-me",
	"placeholder", "example", "dummy", "redacted", "xxx", "***", "...", "todo", "fixme",
}

// placeholderValue reports whether a literal is a template variable or a
// known placeholder idiom rather than a real value.
func placeholderValue(v string) bool {
	v = strings.TrimSpace(v)
	if len(v) < 6 {
		return true
	}
	for _, re := range templateValueRes {
		if re.MatchString(v) {
			return true
		}
	}
	lower := strings.ToLower(v)
	for _, idiom := range placeholderIdioms {
		if strings.Contains(lower, idiom) {
			return true
		}
	}
	return strings.Count(v, v[:1]) == len(v)
}

// secretShaped filters prose out of name/value pairs found inside strings:
// the value must mix letters with digits or symbols and not be trivially
// repetitive.
func secretShaped(v string) bool {
	hasOther := false
	for _, r := range v {
		if !unicode.IsLetter(r) {
			hasOther = true
			break
		}
	}
	return hasOther && calculateEntropy(v) >= 2.5
}

func isDocstring(str *sitter.Node) bool {
	stmt := str.Parent()
	if stmt == nil || stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
		return false
	}
	container := stmt.Parent()
	if container == nil {
		return false
	}
	switch container.Type() {
	case "module", "block":
		return artifact.FirstStatement(container) != nil && artifact.FirstStatement(container).StartByte() == stmt.StartByte()
	}
	return false
}

// calculateEntropy calculates Shannon entropy of a string.
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[rune]int)
	for _, r := range s {
		freq[r]++
	}
	var entropy float64
	length := float64(len([]rune(s)))
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
