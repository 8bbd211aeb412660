package sqlguard

import (
	"regexp"
	"strings"

	"github.com/NopparootSuree/AI-Agent/internal/failure"
)

// Generated is the model output split into the candidate statement and the
// prose that came with it.
type Generated struct {
	Raw         string `json:"-"`
	Statement   string `json:"sql"`
	Explanation string `json:"explanation,omitempty"`
}

var (
	thinkBlockPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)
	fencePattern      = regexp.MustCompile("(?s)```[ \\t]*([A-Za-z0-9_+-]*)[^\\n]*\\n(.*?)```")
	sqlLabelPattern   = regexp.MustCompile(`(?im)^[ \t*#]*(SQL|EXPLANATION)[ \t*]*:[ \t]*`)
	explanationMarker = regexp.MustCompile(`(?i)EXPLANATION[ \t*]*:`)
	sqlMarker         = regexp.MustCompile(`(?i)(^|\n)[ \t*#]*SQL[ \t*]*:`)
	blankLinePattern  = regexp.MustCompile(`\n[ \t\r]*\n`)
)

var sqlFenceTags = map[string]bool{
	"sql":        true,
	"postgres":   true,
	"postgresql": true,
	"psql":       true,
	"pgsql":      true,
	"mysql":      true,
	"tsql":       true,
	"duckdb":     true,
	"sqlite":     true,
}

// statementKeywords are the words that open a statement in model prose.
// Only SELECT is ever accepted; the rest are recognised so that they reach
// validation and get rejected with a precise reason.
var statementKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"DROP":     true,
	"TRUNCATE": true,
	"ALTER":    true,
	"CREATE":   true,
	"EXEC":     true,
	"EXECUTE":  true,
	"MERGE":    true,
	"GRANT":    true,
	"REVOKE":   true,
	"REPLACE":  true,
	"CALL":     true,
	"COPY":     true,
}

// Extract isolates the SQL statement in raw model output. Sources are tried
// in order: fenced code blocks, the "SQL: ... EXPLANATION: ..." layout, and
// finally bare lines that open with a statement keyword. Reasoning blocks
// wrapped in <think> tags are ignored.
//
// When several candidate statements are found they are returned joined by
// semicolons so that validation can report what they are. Extract itself
// only fails with MultipleStatements when every candidate is a SELECT.
func Extract(raw string) (Generated, error) {
	generated := Generated{Raw: raw}
	text := strings.TrimSpace(thinkBlockPattern.ReplaceAllString(raw, ""))
	if text == "" {
		return generated, failure.New(failure.NoStatementFound, "model returned no text")
	}

	statement, explanation, ok := fromFences(text)
	if !ok {
		statement, explanation, ok = fromMarkers(text)
	}
	if !ok {
		statement, explanation, ok = fromKeywordLines(text)
	}
	if !ok || strings.TrimSpace(statement) == "" {
		return generated, failure.New(failure.NoStatementFound, "no SQL statement found in model output")
	}

	generated.Statement = statement
	generated.Explanation = explanation

	pieces := splitStatements(statement)
	if len(pieces) == 0 {
		return generated, failure.New(failure.NoStatementFound, "SQL block is empty").WithSQL(statement)
	}
	if len(pieces) > 1 && allSelect(pieces) {
		return generated, failure.Newf(failure.MultipleStatements, "found %d statements, expected exactly one", len(pieces)).WithSQL(statement)
	}
	return generated, nil
}

func fromFences(text string) (string, string, bool) {
	matches := fencePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return "", "", false
	}

	var blocks []string
	var prose strings.Builder
	last := 0
	for _, m := range matches {
		tag := strings.ToLower(text[m[2]:m[3]])
		body := strings.TrimSpace(text[m[4]:m[5]])
		if !isSQLFence(tag, body) {
			continue
		}
		prose.WriteString(text[last:m[0]])
		prose.WriteString("\n")
		last = m[1]
		blocks = append(blocks, body)
	}
	if len(blocks) == 0 {
		return "", "", false
	}
	prose.WriteString(text[last:])
	return joinBlocks(blocks), cleanExplanation(prose.String()), true
}

func isSQLFence(tag, body string) bool {
	if body == "" {
		return false
	}
	if sqlFenceTags[tag] {
		return true
	}
	return tag == "" && statementKeywords[leadingKeyword(body)]
}

func fromMarkers(text string) (string, string, bool) {
	loc := sqlMarker.FindStringIndex(text)
	if loc == nil {
		return "", "", false
	}
	rest := strings.TrimLeft(text[loc[1]:], " \t\r\n")
	explanation := ""
	if e := explanationMarker.FindStringIndex(rest); e != nil {
		explanation = strings.TrimSpace(rest[e[1]:])
		rest = rest[:e[0]]
	} else if b := blankLinePattern.FindStringIndex(rest); b != nil {
		// Without an EXPLANATION marker the SQL section ends at the first
		// blank line and the prose after it explains the query.
		explanation = strings.TrimSpace(rest[b[1]:])
		rest = rest[:b[0]]
	}

	var lines []string
	for _, line := range strings.Split(rest, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		lines = append(lines, line)
	}
	statement := strings.TrimSpace(strings.Join(lines, "\n"))
	if statement == "" {
		return "", "", false
	}
	return statement, cleanExplanation(explanation), true
}

// fromKeywordLines collects every run of lines that starts with a statement
// keyword and ends at a blank line.
func fromKeywordLines(text string) (string, string, bool) {
	var blocks []string
	var current []string
	var prose []string
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.TrimSpace(strings.Join(current, "\n")))
			current = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
		case len(current) > 0:
			current = append(current, line)
		case statementKeywords[firstWord(trimmed)]:
			current = append(current, trimmed)
		default:
			prose = append(prose, trimmed)
		}
	}
	flush()
	if len(blocks) == 0 {
		return "", "", false
	}
	return joinBlocks(blocks), cleanExplanation(strings.Join(prose, "\n")), true
}

func joinBlocks(blocks []string) string {
	if len(blocks) == 1 {
		return blocks[0]
	}
	trimmed := make([]string, 0, len(blocks))
	for _, block := range blocks {
		trimmed = append(trimmed, strings.TrimRight(strings.TrimSpace(block), "; \t\n"))
	}
	return strings.Join(trimmed, ";\n")
}

func cleanExplanation(text string) string {
	text = sqlLabelPattern.ReplaceAllString(text, "")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, " ")
}

func firstWord(line string) string {
	end := 0
	for end < len(line) && isWordChar(line[end]) {
		end++
	}
	return strings.ToUpper(line[:end])
}

func allSelect(pieces []string) bool {
	for _, piece := range pieces {
		if leadingKeyword(piece) != "SELECT" {
			return false
		}
	}
	return true
}
