package agentctl

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"
)

type answerBody struct {
	SQL         string           `json:"sql"`
	Explanation string           `json:"explanation"`
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
	RowCount    int              `json:"row_count"`
	Truncated   bool             `json:"truncated"`
	RowLimit    int              `json:"row_limit"`
}

func renderAnswer(raw []byte) (string, error) {
	var answer answerBody
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.UseNumber()
	if err := decoder.Decode(&answer); err != nil {
		return "", fmt.Errorf("decode answer: %w", err)
	}

	var out strings.Builder
	out.WriteString(pterm.DefaultBox.WithTitle("SQL").Sprint(answer.SQL))
	out.WriteString("\n")
	if answer.Explanation != "" {
		out.WriteString(answer.Explanation)
		out.WriteString("\n")
	}
	out.WriteString("\n")

	if len(answer.Rows) == 0 {
		out.WriteString("No rows.\n")
		return out.String(), nil
	}
	data := pterm.TableData{answer.Columns}
	for _, row := range answer.Rows {
		cells := make([]string, len(answer.Columns))
		for i, column := range answer.Columns {
			cells[i] = formatCell(row[column])
		}
		data = append(data, cells)
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", fmt.Errorf("render rows: %w", err)
	}
	out.WriteString(table)
	out.WriteString("\n")

	summary := fmt.Sprintf("%d row(s)", answer.RowCount)
	if answer.Truncated {
		summary += fmt.Sprintf(", truncated at %d", answer.RowLimit)
	}
	out.WriteString(summary)
	out.WriteString("\n")
	return out.String(), nil
}

func renderHealth(raw []byte) (string, error) {
	var health struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
			Detail string `json:"detail"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(raw, &health); err != nil {
		return "", fmt.Errorf("decode health: %w", err)
	}
	if health.Status == "" {
		return "", fmt.Errorf("decode health: missing status")
	}

	names := make([]string, 0, len(health.Checks))
	for name := range health.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	data := pterm.TableData{{"CHECK", "STATUS", "DETAIL"}}
	for _, name := range names {
		check := health.Checks[name]
		data = append(data, []string{name, check.Status, check.Detail})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", fmt.Errorf("render health: %w", err)
	}
	return "status: " + health.Status + "\n" + table + "\n", nil
}

func renderSchema(raw []byte) (string, error) {
	var desc struct {
		TableName string `json:"table_name"`
		Columns   []struct {
			Name        string   `json:"name"`
			Type        string   `json:"type"`
			Description string   `json:"description"`
			Examples    []string `json:"examples"`
		} `json:"columns"`
	}
	if err := json.Unmarshal(raw, &desc); err != nil {
		return "", fmt.Errorf("decode schema: %w", err)
	}

	data := pterm.TableData{{"COLUMN", "TYPE", "DESCRIPTION", "EXAMPLES"}}
	for _, column := range desc.Columns {
		data = append(data, []string{column.Name, column.Type, column.Description, strings.Join(column.Examples, ", ")})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", fmt.Errorf("render schema: %w", err)
	}
	return "table: " + desc.TableName + "\n" + table + "\n", nil
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
