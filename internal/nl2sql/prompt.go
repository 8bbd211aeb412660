package nl2sql

import (
	"fmt"
	"strings"

	"github.com/NopparootSuree/AI-Agent/internal/failure"
	"github.com/NopparootSuree/AI-Agent/internal/schema"
)

const (
	DialectPostgres = "postgres"
	DialectDuckDB   = "duckdb"
)

// Prompt is the instruction payload sent to the language model.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// BuildPrompt renders the instruction payload for one question. It performs
// no I/O and rejects blank questions before anything else happens.
func BuildPrompt(desc *schema.Descriptor, question, dialect string) (Prompt, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Prompt{}, failure.New(failure.EmptyQuestion, "question must not be empty")
	}
	table := desc.TableName()
	dialectName := dialectLabel(dialect)

	system := fmt.Sprintf(
		"You are an assistant that translates questions about inventory into a single read-only %s SQL query.\n"+
			"Safety rule: generate only one SELECT statement against the table %s. "+
			"Never write INSERT, UPDATE, DELETE, DROP, TRUNCATE, ALTER, CREATE, EXEC or any other statement that changes data or schema.\n"+
			"Formatting rules:\n"+
			"- Use only the columns listed in the schema.\n"+
			"- Use plain column names. Do not use backticks or square brackets.\n"+
			"- Use single quotes for string values.\n"+
			"- Use LIMIT to restrict rows, never TOP.\n"+
			"- Use LIKE for text matching, never ILIKE.\n"+
			"- Do not use :: casts.\n"+
			"- Do not use WITH, SELECT INTO or locking clauses.\n"+
			"The question may be written in Thai or English. Write the explanation in the same language as the question.",
		dialectName, table,
	)

	var user strings.Builder
	user.WriteString(desc.Render())
	user.WriteString("\nQuestion: ")
	user.WriteString(question)
	user.WriteString("\n\nRespond with exactly one SQL code block followed by one or two sentences explaining what the query returns.\n\n")
	user.WriteString(exampleFor(desc))

	return Prompt{System: system, User: user.String()}, nil
}

func dialectLabel(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectDuckDB:
		return "DuckDB"
	default:
		return "PostgreSQL"
	}
}

// exampleFor renders the worked example. The stock example is used when the
// descriptor has the JOBORDER stock columns.
func exampleFor(desc *schema.Descriptor) string {
	names := map[string]bool{}
	for _, name := range desc.ColumnNames() {
		names[strings.ToUpper(name)] = true
	}
	table := desc.TableName()
	if names["PART_NO"] && names["PART_NAME"] && names["STOCK_MAIN"] {
		return "Example:\nQuestion: Show parts with stock less than 100\n" +
			"```sql\nSELECT PART_NO, PART_NAME, STOCK_MAIN\nFROM " + table + "\nWHERE STOCK_MAIN < 100\n```\n" +
			"This lists the part number, part name and main stock of every part with fewer than 100 units in main stock.\n"
	}
	columns := desc.ColumnNames()
	if len(columns) > 2 {
		columns = columns[:2]
	}
	return "Example:\nQuestion: Show ten rows\n" +
		"```sql\nSELECT " + strings.Join(columns, ", ") + "\nFROM " + table + "\nLIMIT 10\n```\n" +
		"This returns the first ten rows of " + table + ".\n"
}
