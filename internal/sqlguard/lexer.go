package sqlguard

import "strings"

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuotedIdent
	tokenString
	tokenComment
	tokenSymbol
)

type token struct {
	kind  tokenKind
	text  string
	start int
	end   int
}

// tokenize splits SQL into words, quoted identifiers, string literals,
// comments and single-byte symbols. Whitespace is dropped. Unterminated
// literals and comments run to the end of the input.
func tokenize(sql string) []token {
	var tokens []token
	n := len(sql)
	pos := 0
	for pos < n {
		ch := sql[pos]
		switch {
		case isSpace(ch):
			pos++
		case ch == '\'':
			end := skipQuoted(sql, pos, '\'')
			tokens = append(tokens, token{kind: tokenString, text: sql[pos:end], start: pos, end: end})
			pos = end
		case ch == '"' || ch == '`':
			end := skipQuoted(sql, pos, ch)
			tokens = append(tokens, token{kind: tokenQuotedIdent, text: unquote(sql[pos:end], ch), start: pos, end: end})
			pos = end
		case ch == '-' && pos+1 < n && sql[pos+1] == '-':
			end := strings.IndexByte(sql[pos:], '\n')
			if end < 0 {
				end = n
			} else {
				end += pos
			}
			tokens = append(tokens, token{kind: tokenComment, text: sql[pos:end], start: pos, end: end})
			pos = end
		case ch == '/' && pos+1 < n && sql[pos+1] == '*':
			end := strings.Index(sql[pos+2:], "*/")
			if end < 0 {
				end = n
			} else {
				end += pos + 4
			}
			tokens = append(tokens, token{kind: tokenComment, text: sql[pos:end], start: pos, end: end})
			pos = end
		case ch == '$':
			if end, ok := skipDollarQuoted(sql, pos); ok {
				tokens = append(tokens, token{kind: tokenString, text: sql[pos:end], start: pos, end: end})
				pos = end
				continue
			}
			tokens = append(tokens, token{kind: tokenSymbol, text: "$", start: pos, end: pos + 1})
			pos++
		case isWordStart(ch):
			end := pos + 1
			for end < n && isWordChar(sql[end]) {
				end++
			}
			tokens = append(tokens, token{kind: tokenWord, text: sql[pos:end], start: pos, end: end})
			pos = end
		default:
			tokens = append(tokens, token{kind: tokenSymbol, text: sql[pos : pos+1], start: pos, end: pos + 1})
			pos++
		}
	}
	return tokens
}

// splitStatements cuts sql at top-level semicolons and drops pieces that hold
// nothing but whitespace and comments.
func splitStatements(sql string) []string {
	var pieces []string
	start := 0
	meaningful := false
	for _, tok := range tokenize(sql) {
		if tok.kind == tokenSymbol && tok.text == ";" {
			if meaningful {
				pieces = append(pieces, strings.TrimSpace(sql[start:tok.start]))
			}
			start = tok.end
			meaningful = false
			continue
		}
		if tok.kind != tokenComment {
			meaningful = true
		}
	}
	if meaningful {
		pieces = append(pieces, strings.TrimSpace(sql[start:]))
	}
	return pieces
}

// leadingKeyword returns the first word of a statement in upper case,
// skipping comments and opening parentheses.
func leadingKeyword(sql string) string {
	for _, tok := range tokenize(sql) {
		switch {
		case tok.kind == tokenComment:
			continue
		case tok.kind == tokenSymbol && tok.text == "(":
			continue
		case tok.kind == tokenWord:
			return strings.ToUpper(tok.text)
		default:
			return ""
		}
	}
	return ""
}

// containsKeyword reports whether keyword appears as a bare word outside
// literals, quoted identifiers and comments.
func containsKeyword(sql, keyword string) bool {
	for _, tok := range tokenize(sql) {
		if tok.kind == tokenWord && strings.EqualFold(tok.text, keyword) {
			return true
		}
	}
	return false
}

// dialectHazard reports lexemes that the MySQL-grammar parser reads
// differently from PostgreSQL and DuckDB. Any of them could hide a table
// reference from the table check, so statements holding one are refused.
func dialectHazard(sql string) (string, bool) {
	tokens := tokenize(sql)
	for i, tok := range tokens {
		switch tok.kind {
		case tokenString:
			if strings.ContainsRune(tok.text, '\\') {
				return "backslashes in string literals are not allowed", true
			}
		case tokenQuotedIdent:
			if sql[tok.start] == '`' {
				return "backtick quoted identifiers are not allowed", true
			}
		case tokenComment:
			if strings.HasPrefix(tok.text, "/*") {
				if strings.HasPrefix(tok.text, "/*!") || strings.Contains(tok.text[2:], "/*") {
					return "nested or executable block comments are not allowed", true
				}
			} else if strings.ContainsRune(strings.TrimRight(tok.text, "\r"), '\r') {
				return "carriage returns inside line comments are not allowed", true
			}
		case tokenSymbol:
			switch tok.text {
			case "#":
				return "'#' is not allowed", true
			case "@":
				return "'@' is not allowed", true
			case "/":
				if i+1 < len(tokens) && tokens[i+1].kind == tokenSymbol && tokens[i+1].text == "/" && tokens[i+1].start == tok.end {
					return "'//' is not allowed", true
				}
			}
		}
	}
	return "", false
}

// parseView rewrites double-quoted identifiers into backtick quoting so the
// MySQL-grammar parser reads them as identifiers instead of strings. The
// result is only ever parsed, never executed.
func parseView(sql string) string {
	var b strings.Builder
	last := 0
	for _, tok := range tokenize(sql) {
		if tok.kind != tokenQuotedIdent || sql[tok.start] != '"' {
			continue
		}
		b.WriteString(sql[last:tok.start])
		b.WriteByte('`')
		b.WriteString(strings.ReplaceAll(tok.text, "`", "``"))
		b.WriteByte('`')
		last = tok.end
	}
	b.WriteString(sql[last:])
	return b.String()
}

func skipQuoted(sql string, pos int, quote byte) int {
	n := len(sql)
	pos++
	for pos < n {
		if sql[pos] == quote {
			pos++
			if pos < n && sql[pos] == quote {
				pos++
				continue
			}
			return pos
		}
		pos++
	}
	return n
}

func unquote(quoted string, quote byte) string {
	inner := quoted[1:]
	if strings.HasSuffix(inner, string(quote)) {
		inner = inner[:len(inner)-1]
	}
	doubled := string([]byte{quote, quote})
	return strings.ReplaceAll(inner, doubled, string(quote))
}

// skipDollarQuoted handles PostgreSQL $tag$...$tag$ literals.
func skipDollarQuoted(sql string, pos int) (int, bool) {
	n := len(sql)
	end := pos + 1
	for end < n && isWordChar(sql[end]) && !(sql[end] >= '0' && sql[end] <= '9' && end == pos+1) {
		end++
	}
	if end >= n || sql[end] != '$' {
		return pos, false
	}
	tag := sql[pos : end+1]
	closing := strings.Index(sql[end+1:], tag)
	if closing < 0 {
		return n, true
	}
	return end + 1 + closing + len(tag), true
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isWordStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch >= 0x80
}

func isWordChar(ch byte) bool {
	return isWordStart(ch) || (ch >= '0' && ch <= '9')
}
