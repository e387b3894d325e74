package ops

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
)

// Statement is the common form of templates for SQL drivers:
//
//	stmt         statement text with driver specific placeholders (required)
//	params       comma separated values for the placeholders
//	mode         "query" returns the first column of the first row, "exec" returns the rows affected.
//	             Defaults to query for statements starting with SELECT and exec otherwise.
//	expect_rows  for exec, fewer affected rows than this is reported as not applied
type Statement struct {
	Stmt       Binding
	Params     []Binding
	Query      bool
	ExpectRows int64
}

func ParseStatement(template OpTemplate) (Statement, error) {
	stmt, err := template.RequiredField("stmt")
	if err != nil {
		return Statement{}, err
	}
	statement := Statement{
		Stmt:  stmt,
		Query: strings.HasPrefix(strings.ToUpper(strings.TrimSpace(template.Fields["stmt"])), "SELECT"),
	}
	if raw, ok := template.Fields["params"]; ok && strings.TrimSpace(raw) != "" {
		for _, param := range strings.Split(raw, ",") {
			statement.Params = append(statement.Params, NewBinding(strings.TrimSpace(param)))
		}
	}
	switch mode := template.Fields["mode"]; mode {
	case "":
	case "query":
		statement.Query = true
	case "exec":
		statement.Query = false
	default:
		return Statement{}, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    template.Name + ".op.mode",
			Value:   mode,
			Message: "must be query or exec",
		})
	}
	if statement.ExpectRows, err = template.IntField("expect_rows", 0); err != nil {
		return Statement{}, err
	}
	return statement, nil
}

// Bind returns the statement text and arguments for cycle.
func (s Statement) Bind(cycle int64) (string, []any) {
	args := make([]any, len(s.Params))
	for i, param := range s.Params {
		args[i] = param.Bind(cycle)
	}
	return s.Stmt.Bind(cycle), args
}
