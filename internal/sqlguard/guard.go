// Package sqlguard extracts the SQL statement from language model output and
// admits it only when it is a single SELECT over the one permitted table.
package sqlguard

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/NopparootSuree/AI-Agent/internal/failure"
	"github.com/NopparootSuree/AI-Agent/internal/schema"
)

// Verdict is the outcome of validating one statement. Statement is only set
// when the statement was accepted, and is then the input text unchanged.
type Verdict struct {
	Accepted  bool
	Reason    failure.Reason
	Detail    string
	Statement string
}

// Err converts a rejected verdict into a pipeline failure carrying the
// attempted statement. It returns nil for accepted verdicts.
func (v Verdict) Err(attempted string) error {
	if v.Accepted {
		return nil
	}
	return failure.New(v.Reason, v.Detail).WithSQL(attempted)
}

type Guard struct {
	table     string
	namespace string
}

func New(desc *schema.Descriptor) *Guard {
	return &Guard{
		table:     desc.TableName(),
		namespace: desc.Namespace(),
	}
}

// Check extracts and validates in one step.
func (g *Guard) Check(raw string) (Generated, error) {
	generated, err := Extract(raw)
	if err != nil {
		if failure.Is(err, failure.MultipleStatements) {
			// Report the first failing rule across all statements.
			if verdict := g.Validate(generated.Statement); !verdict.Accepted {
				return generated, verdict.Err(generated.Statement)
			}
		}
		return generated, err
	}
	if verdict := g.Validate(generated.Statement); !verdict.Accepted {
		return generated, verdict.Err(generated.Statement)
	}
	return generated, nil
}

// Validate applies the statement rules in order; the first failing rule
// decides the verdict.
func (g *Guard) Validate(statement string) Verdict {
	pieces := splitStatements(statement)
	if len(pieces) == 0 {
		return reject(failure.NoStatementFound, "statement is empty")
	}
	for _, piece := range pieces {
		keyword := leadingKeyword(piece)
		if keyword != "SELECT" {
			if keyword == "" {
				return reject(failure.ForbiddenStatementKind, "statement does not begin with SELECT")
			}
			return reject(failure.ForbiddenStatementKind, fmt.Sprintf("%s statements are not allowed; only SELECT is permitted", keyword))
		}
	}
	if len(pieces) > 1 {
		return reject(failure.MultipleStatements, fmt.Sprintf("found %d statements, expected exactly one", len(pieces)))
	}
	single := pieces[0]
	if containsKeyword(single, "INTO") {
		return reject(failure.ForbiddenStatementKind, "SELECT ... INTO is not allowed")
	}

	if detail, ok := dialectHazard(single); ok {
		return reject(failure.UnsupportedSyntax, detail)
	}

	parsed, err := sqlparser.Parse(parseView(single))
	if err != nil {
		return reject(failure.UnsupportedSyntax, fmt.Sprintf("statement could not be parsed: %v", err))
	}
	switch stmt := parsed.(type) {
	case *sqlparser.Select:
		if stmt.Lock != "" {
			return reject(failure.ForbiddenStatementKind, "locking clauses are not allowed")
		}
	case *sqlparser.Union:
		if stmt.Lock != "" {
			return reject(failure.ForbiddenStatementKind, "locking clauses are not allowed")
		}
	case *sqlparser.ParenSelect:
	default:
		return reject(failure.ForbiddenStatementKind, "statement is not a SELECT")
	}

	if reason, detail, ok := g.checkTables(parsed); !ok {
		return reject(reason, detail)
	}
	return Verdict{Accepted: true, Statement: statement}
}

func (g *Guard) checkTables(stmt sqlparser.Statement) (failure.Reason, string, bool) {
	var references int
	var foreign []string
	err := sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		aliased, ok := node.(*sqlparser.AliasedTableExpr)
		if !ok {
			return true, nil
		}
		name, ok := aliased.Expr.(sqlparser.TableName)
		if !ok {
			return true, nil
		}
		references++
		if !g.permitted(name) {
			foreign = append(foreign, qualifiedName(name))
		}
		return true, nil
	}, stmt)
	if err != nil {
		return failure.UnsupportedSyntax, fmt.Sprintf("walk statement: %v", err), false
	}
	if len(foreign) > 0 {
		return failure.UnauthorizedTable, fmt.Sprintf("table %s is not permitted; only %s may be queried", strings.Join(foreign, ", "), g.table), false
	}
	if references == 0 {
		return failure.UnauthorizedTable, fmt.Sprintf("statement must read from %s", g.table), false
	}
	return "", "", true
}

func (g *Guard) permitted(name sqlparser.TableName) bool {
	if !strings.EqualFold(name.Name.String(), g.table) {
		return false
	}
	if name.Qualifier.IsEmpty() {
		return true
	}
	return g.namespace != "" && strings.EqualFold(name.Qualifier.String(), g.namespace)
}

func qualifiedName(name sqlparser.TableName) string {
	if name.Qualifier.IsEmpty() {
		return name.Name.String()
	}
	return name.Qualifier.String() + "." + name.Name.String()
}

func reject(reason failure.Reason, detail string) Verdict {
	return Verdict{Reason: reason, Detail: detail}
}
