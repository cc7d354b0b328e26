package sqlguard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// The validator never re-scans raw candidate text. The lexer strips comments
// and string bodies are kept opaque, so casing tricks or comment smuggling
// cannot make one check see different text than another.

var (
	ErrEmptyStatement = errors.New("empty statement")
	ErrMultiStatement = errors.New("multiple statements")
)

type Kind string

const (
	KindSelect Kind = "select"
	KindWith   Kind = "with"
	KindOther  Kind = "other"
)

// Statement is the typed form of one candidate SQL text: its leading kind,
// every bare word, the identifiers that must pass the schema allow-list, the
// function calls, and the explicit top-level row limit if any. A LIMIT inside
// a subquery does not bound the outer statement and is not recorded.
type Statement struct {
	Kind        Kind
	Leading     string
	Words       []string
	Identifiers []string
	Functions   []string
	LimitValue  int
	Text        string
}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenNumber
	tokenString
	tokenSymbol
)

type token struct {
	kind tokenKind
	text string
}

// Parse lexes candidate SQL once and builds its Statement. It fails with
// ErrMultiStatement when a second statement follows a semicolon, comments
// included.
func Parse(input string) (*Statement, error) {
	tokens, sanitized, err := lex(input)
	if err != nil {
		return nil, err
	}

	// Trailing semicolons are harmless; interior ones are not.
	for len(tokens) > 0 && tokens[len(tokens)-1].kind == tokenSymbol && tokens[len(tokens)-1].text == ";" {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return nil, ErrEmptyStatement
	}
	for _, tok := range tokens {
		if tok.kind == tokenSymbol && tok.text == ";" {
			return nil, ErrMultiStatement
		}
	}

	stmt := &Statement{
		LimitValue: -1,
		Text:       trimTrailingSemicolons(sanitized),
	}

	leading := tokens[0]
	if leading.kind == tokenWord {
		stmt.Leading = leading.text
		switch leading.text {
		case "select":
			stmt.Kind = KindSelect
		case "with":
			stmt.Kind = KindWith
		default:
			stmt.Kind = KindOther
		}
	} else {
		stmt.Kind = KindOther
		stmt.Leading = leading.text
	}

	aliases := collectAliases(tokens)

	depth := 0
	for i, tok := range tokens {
		if tok.kind == tokenSymbol {
			switch tok.text {
			case "(":
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
			}
			continue
		}
		if tok.kind != tokenWord {
			continue
		}
		stmt.Words = append(stmt.Words, tok.text)

		if isFunctionCall(tokens, i) {
			stmt.Functions = append(stmt.Functions, tok.text)
			continue
		}
		if tok.text == "limit" && depth == 0 && i+1 < len(tokens) && tokens[i+1].kind == tokenNumber {
			if value, err := strconv.Atoi(tokens[i+1].text); err == nil {
				stmt.LimitValue = value
			}
			continue
		}
		if tok.text == "fetch" && depth == 0 {
			if value, ok := fetchClauseLimit(tokens, i); ok {
				stmt.LimitValue = value
			}
			continue
		}
		if _, ok := sqlKeywords[tok.text]; ok {
			continue
		}
		if _, ok := aliases[tok.text]; ok {
			continue
		}
		stmt.Identifiers = append(stmt.Identifiers, tok.text)
	}

	return stmt, nil
}

// collectAliases finds names the query itself declares: "x AS name",
// "FROM employee e", subquery aliases, and CTE heads. They are admitted by
// the identifier check without consulting the schema.
func collectAliases(tokens []token) map[string]struct{} {
	aliases := map[string]struct{}{}
	for i, tok := range tokens {
		if tok.kind != tokenWord || isReservedWord(tok.text) {
			continue
		}
		if isFunctionCall(tokens, i) {
			continue
		}
		if i > 0 {
			prev := tokens[i-1]
			if prev.kind == tokenWord && prev.text == "as" {
				aliases[tok.text] = struct{}{}
				continue
			}
			// "FROM employee e" and ") e" both declare e.
			if (prev.kind == tokenWord && !isReservedWord(prev.text)) ||
				(prev.kind == tokenSymbol && prev.text == ")") {
				aliases[tok.text] = struct{}{}
				continue
			}
		}
		// CTE heads: "WITH name AS (" / ", name AS (".
		if i+2 < len(tokens) &&
			tokens[i+1].kind == tokenWord && tokens[i+1].text == "as" &&
			tokens[i+2].kind == tokenSymbol && tokens[i+2].text == "(" {
			aliases[tok.text] = struct{}{}
		}
	}
	return aliases
}

func isFunctionCall(tokens []token, i int) bool {
	return tokens[i].kind == tokenWord &&
		i+1 < len(tokens) &&
		tokens[i+1].kind == tokenSymbol &&
		tokens[i+1].text == "("
}

func fetchClauseLimit(tokens []token, i int) (int, bool) {
	// FETCH FIRST n ROWS ONLY / FETCH NEXT n ROWS ONLY
	if i+2 >= len(tokens) {
		return 0, false
	}
	mode := tokens[i+1]
	if mode.kind != tokenWord || (mode.text != "first" && mode.text != "next") {
		return 0, false
	}
	if tokens[i+2].kind != tokenNumber {
		return 0, false
	}
	value, err := strconv.Atoi(tokens[i+2].text)
	if err != nil {
		return 0, false
	}
	return value, true
}

func isReservedWord(word string) bool {
	_, ok := sqlKeywords[word]
	return ok
}

func trimTrailingSemicolons(text string) string {
	trimmed := strings.TrimSpace(text)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func lex(input string) ([]token, string, error) {
	var tokens []token
	var sanitized strings.Builder
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == '-' && i+1 < len(input) && input[i+1] == '-':
			for i < len(input) && input[i] != '\n' {
				i++
			}
			sanitized.WriteByte(' ')
		case c == '/' && i+1 < len(input) && input[i+1] == '*':
			depth := 1
			i += 2
			for i < len(input) && depth > 0 {
				if input[i] == '/' && i+1 < len(input) && input[i+1] == '*' {
					depth++
					i += 2
					continue
				}
				if input[i] == '*' && i+1 < len(input) && input[i+1] == '/' {
					depth--
					i += 2
					continue
				}
				i++
			}
			if depth > 0 {
				return nil, "", fmt.Errorf("unterminated block comment")
			}
			sanitized.WriteByte(' ')
		case c == '\'':
			start := i
			i++
			closed := false
			for i < len(input) {
				if input[i] == '\'' {
					if i+1 < len(input) && input[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, "", fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, token{kind: tokenString, text: input[start:i]})
			sanitized.WriteString(input[start:i])
		case c == '"':
			start := i
			i++
			closed := false
			for i < len(input) {
				if input[i] == '"' {
					if i+1 < len(input) && input[i+1] == '"' {
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, "", fmt.Errorf("unterminated quoted identifier")
			}
			raw := input[start:i]
			inner := strings.ReplaceAll(raw[1:len(raw)-1], `""`, `"`)
			tokens = append(tokens, token{kind: tokenWord, text: strings.ToLower(inner)})
			sanitized.WriteString(raw)
		case isIdentStart(c):
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			word := strings.ToLower(input[start:i])
			tokens = append(tokens, token{kind: tokenWord, text: word})
			sanitized.WriteString(input[start:i])
		case c >= '0' && c <= '9':
			start := i
			for i < len(input) && (isIdentPart(input[i]) || input[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: input[start:i]})
			sanitized.WriteString(input[start:i])
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			sanitized.WriteByte(c)
			i++
		default:
			if op, ok := multiCharOperator(input[i:]); ok {
				tokens = append(tokens, token{kind: tokenSymbol, text: op})
				sanitized.WriteString(op)
				i += len(op)
				break
			}
			tokens = append(tokens, token{kind: tokenSymbol, text: string(c)})
			sanitized.WriteByte(c)
			i++
		}
	}
	return tokens, sanitized.String(), nil
}

func multiCharOperator(rest string) (string, bool) {
	for _, op := range []string{"::", "<=", ">=", "<>", "!=", "||"} {
		if strings.HasPrefix(rest, op) {
			return op, true
		}
	}
	return "", false
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '$' || (c >= '0' && c <= '9')
}

// sqlKeywords are bare words that are structure, not identifiers: clause
// keywords, operators, type names, and date-part names. Anything outside
// this set must match the schema or a declared alias.
var sqlKeywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "group": {}, "by": {}, "order": {},
	"having": {}, "limit": {}, "offset": {}, "as": {}, "on": {}, "join": {},
	"inner": {}, "left": {}, "right": {}, "full": {}, "outer": {}, "cross": {},
	"and": {}, "or": {}, "not": {}, "in": {}, "is": {}, "null": {}, "like": {},
	"ilike": {}, "similar": {}, "between": {}, "case": {}, "when": {},
	"then": {}, "else": {}, "end": {}, "distinct": {}, "union": {}, "all": {},
	"with": {}, "recursive": {}, "asc": {}, "desc": {}, "nulls": {},
	"first": {}, "last": {}, "exists": {}, "any": {}, "some": {}, "cast": {},
	"using": {}, "natural": {}, "except": {}, "intersect": {}, "fetch": {},
	"next": {}, "rows": {}, "row": {}, "only": {}, "over": {},
	"partition": {}, "filter": {}, "within": {}, "true": {}, "false": {},
	"values": {}, "escape": {}, "collate": {},
	// type names, so casts like hours::numeric pass the identifier check
	"integer": {}, "int": {}, "int4": {}, "int8": {}, "bigint": {},
	"smallint": {}, "numeric": {}, "decimal": {}, "real": {}, "float": {},
	"double": {}, "precision": {}, "text": {}, "varchar": {}, "char": {},
	"character": {}, "varying": {}, "boolean": {}, "bool": {}, "date": {},
	"time": {}, "timestamp": {}, "timestamptz": {}, "interval": {},
	"zone": {}, "without": {},
	// date-part names used by extract/date_trunc
	"epoch": {}, "year": {}, "quarter": {}, "month": {}, "week": {},
	"day": {}, "hour": {}, "minute": {}, "second": {}, "dow": {}, "doy": {},
	"isodow": {}, "century": {}, "decade": {}, "millennium": {},
	"current_date": {}, "current_timestamp": {}, "current_time": {},
	"localtime": {}, "localtimestamp": {},
}
