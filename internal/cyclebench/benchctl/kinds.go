package benchctl

import (
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/util"
	"github.com/armadaproject/cyclebench/internal/cyclebench/drivers"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
)

// Kinds prints the error kinds of a driver and the groups they fall into once errorSpec is applied.
func (a *App) Kinds(driverName string, errorSpec string) error {
	table, err := drivers.Kinds(driverName)
	if err != nil {
		return err
	}
	classifier, err := errorhandling.NewClassifier(table)
	if err != nil {
		return err
	}
	spec, err := errorhandling.ParseErrorSpec(errorSpec)
	if err != nil {
		return err
	}
	if err := classifier.Apply(spec); err != nil {
		return err
	}

	sb := util.NewTabbedStringBuilder(0, 4, 2, ' ', 0)
	sb.WriteRow("Kind", "Parent", "Code", "Group")
	for _, kind := range table.Kinds() {
		sb.WriteRow(kind.Name, kind.Parent, kind.Code, classifier.GroupOfKind(kind.Name))
	}
	sb.Writef("\nGroup\tPolicy\tMembers\n")
	for _, group := range classifier.Groups() {
		policy, _ := classifier.Policy(group)
		members := classifier.Members(group)
		if group == errorhandling.CatchAllGroup {
			members = []string{"*"}
		}
		sb.WriteRow(group, policy, strings.Join(members, ","))
	}
	_, err = io.WriteString(a.Out, sb.String())
	return errors.WithStack(err)
}
