// Package schema describes the single table the agent is allowed to query.
//
// The descriptor is interpolated verbatim into every prompt, so editing the
// YAML changes what the model sees without code changes elsewhere.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed joborder.yaml
var embeddedDescriptor []byte

type Type string

const (
	TypeText    Type = "text"
	TypeInteger Type = "integer"
	TypeDecimal Type = "decimal"
)

const maxExamples = 3

type Column struct {
	Name        string   `json:"name" yaml:"name"`
	Type        Type     `json:"type" yaml:"type"`
	Description string   `json:"description" yaml:"description"`
	Examples    []string `json:"examples" yaml:"examples"`
}

// Descriptor is immutable once loaded. Accessors hand out copies.
type Descriptor struct {
	table     string
	namespace string
	columns   []Column
}

type document struct {
	Table     string   `yaml:"table"`
	Namespace string   `yaml:"namespace"`
	Columns   []Column `yaml:"columns"`
}

// Default returns the embedded JOBORDER descriptor.
func Default() *Descriptor {
	desc, err := Parse(embeddedDescriptor)
	if err != nil {
		panic(fmt.Sprintf("embedded schema descriptor is invalid: %v", err))
	}
	return desc
}

// Load reads a descriptor from path, or returns the embedded default when
// path is empty.
func Load(path string) (*Descriptor, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(embeddedDescriptor)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema descriptor %q: %w", path, err)
	}
	desc, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("schema descriptor %q: %w", path, err)
	}
	return desc, nil
}

func Parse(raw []byte) (*Descriptor, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode schema descriptor: %w", err)
	}

	table := strings.TrimSpace(doc.Table)
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if len(doc.Columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", table)
	}

	seen := make(map[string]struct{}, len(doc.Columns))
	columns := make([]Column, 0, len(doc.Columns))
	for i, column := range doc.Columns {
		name := strings.TrimSpace(column.Name)
		if name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate column %s", name)
		}
		seen[key] = struct{}{}

		columnType := Type(strings.ToLower(strings.TrimSpace(string(column.Type))))
		switch columnType {
		case TypeText, TypeInteger, TypeDecimal:
		default:
			return nil, fmt.Errorf("column %s has unknown type %q", name, column.Type)
		}
		if len(column.Examples) == 0 || len(column.Examples) > maxExamples {
			return nil, fmt.Errorf("column %s needs 1-%d example values, got %d", name, maxExamples, len(column.Examples))
		}

		columns = append(columns, Column{
			Name:        name,
			Type:        columnType,
			Description: strings.TrimSpace(column.Description),
			Examples:    append([]string(nil), column.Examples...),
		})
	}

	return &Descriptor{
		table:     table,
		namespace: strings.TrimSpace(doc.Namespace),
		columns:   columns,
	}, nil
}

func (d *Descriptor) TableName() string {
	return d.table
}

// Namespace is the schema qualifier accepted in front of the table name, if any.
func (d *Descriptor) Namespace() string {
	return d.namespace
}

func (d *Descriptor) Columns() []Column {
	out := make([]Column, len(d.columns))
	for i, column := range d.columns {
		column.Examples = append([]string(nil), column.Examples...)
		out[i] = column
	}
	return out
}

func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.columns))
	for i, column := range d.columns {
		names[i] = column.Name
	}
	return names
}

// Render formats the descriptor as the readable column list used in prompts.
func (d *Descriptor) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n\nColumns:\n", d.table)
	for _, column := range d.columns {
		fmt.Fprintf(&b, "- %s (%s) - %s", column.Name, strings.ToUpper(string(column.Type)), column.Description)
		quoted := make([]string, len(column.Examples))
		for i, example := range column.Examples {
			if column.Type == TypeText {
				quoted[i] = "'" + example + "'"
			} else {
				quoted[i] = example
			}
		}
		fmt.Fprintf(&b, " (e.g., %s)\n", strings.Join(quoted, ", "))
	}
	return b.String()
}

func (d *Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TableName string   `json:"table_name"`
		Namespace string   `json:"namespace,omitempty"`
		Columns   []Column `json:"columns"`
	}{
		TableName: d.table,
		Namespace: d.namespace,
		Columns:   d.Columns(),
	})
}
