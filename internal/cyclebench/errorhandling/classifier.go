package errorhandling

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/cyclebench/marker"
)

// Group names present in every classifier.
const (
	GroupRetryable  = "retryable"
	GroupUnverified = "unverified"
	GroupUnapplied  = "unapplied"
	CatchAllGroup   = "unclassified"
)

// DefaultPolicies apply to the standard groups unless configured otherwise.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		GroupRetryable:  MustParsePolicy("warn,retry"),
		GroupUnverified: MustParsePolicy("stop"),
		GroupUnapplied:  MustParsePolicy("warn"),
		CatchAllGroup:   MustParsePolicy("stop"),
	}
}

// Classification is the result of classifying one error.
type Classification struct {
	Group string
	// Kind that decided the group, or failing that the kind of the error itself. Nil if neither is registered.
	Kind *Kind
}

// snapshot is one immutable version of the group and policy tables.
type snapshot struct {
	members   map[string][]string
	kindGroup map[string]string
	policies  map[string]Policy
}

// Classifier assigns errors to groups. Classification is read-mostly and lock free; group and policy updates
// build a new snapshot that in-flight work picks up on its next lookup.
type Classifier struct {
	table   *KindTable
	current atomic.Pointer[snapshot]
	// Serialises updates.
	mu sync.Mutex
}

// NewClassifier builds a classifier whose groups are taken from the Group of each registered kind, with the
// default policies for the standard groups.
func NewClassifier(table *KindTable) (*Classifier, error) {
	members := map[string][]string{
		GroupRetryable:  nil,
		GroupUnverified: nil,
		GroupUnapplied:  nil,
	}
	for _, kind := range table.Kinds() {
		if kind.Group != "" {
			members[kind.Group] = append(members[kind.Group], kind.Name)
		}
	}
	c := &Classifier{table: table}
	s, err := c.build(members, DefaultPolicies())
	if err != nil {
		return nil, err
	}
	c.current.Store(s)
	return c, nil
}

// Table returns the kind table the classifier was built with.
func (c *Classifier) Table() *KindTable {
	return c.table
}

// Classify returns the group err belongs to. It never fails: anything unmatched is in CatchAllGroup.
func (c *Classifier) Classify(err error) string {
	return c.ClassifyDetailed(err).Group
}

// ClassifyDetailed classifies err and also reports the kind that decided the group.
func (c *Classifier) ClassifyDetailed(err error) Classification {
	s := c.current.Load()
	if err == nil {
		return Classification{Group: CatchAllGroup}
	}

	concrete := stripAnnotations(err)
	kind, known := c.table.Lookup(concrete)
	if known {
		if group, ok := s.kindGroup[kind.Name]; ok {
			return Classification{Group: group, Kind: kind}
		}
	}

	if cause := unwrapOnce(concrete); cause != nil {
		cause = stripAnnotations(cause)
		if causeKind, ok := c.table.Lookup(cause); ok {
			if group, ok := s.kindGroup[causeKind.Name]; ok {
				return Classification{Group: group, Kind: causeKind}
			}
			if !known {
				kind, known = causeKind, true
			}
		}
	}

	return Classification{Group: CatchAllGroup, Kind: kind}
}

// Policy returns the policy for a group.
func (c *Classifier) Policy(group string) (Policy, bool) {
	p, ok := c.current.Load().policies[group]
	return p, ok
}

// Groups returns every group name, sorted, with the catch-all last.
func (c *Classifier) Groups() []string {
	s := c.current.Load()
	names := make([]string, 0, len(s.members)+1)
	for name := range s.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(names, CatchAllGroup)
}

// Members returns the kinds listed for a group, not including their descendants.
func (c *Classifier) Members(group string) []string {
	return append([]string(nil), c.current.Load().members[group]...)
}

// GroupOfKind returns the group that errors of the named kind are assigned to.
func (c *Classifier) GroupOfKind(name string) string {
	if group, ok := c.current.Load().kindGroup[name]; ok {
		return group
	}
	return CatchAllGroup
}

// SetGroup replaces the members of a group, creating it if needed. Listed kinds are removed from any other group.
func (c *Classifier) SetGroup(group string, kinds ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.current.Load()
	members := copyMembers(s.members)
	moveKinds(members, group, kinds)
	next, err := c.build(members, s.policies)
	if err != nil {
		return err
	}
	c.current.Store(next)
	return nil
}

// SetPolicy sets the policy of an existing group.
func (c *Classifier) SetPolicy(group string, policy Policy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.current.Load()
	if _, ok := s.members[group]; !ok && group != CatchAllGroup {
		return errors.WithStack(&benchmarkerrors.ErrNotFound{Type: "error group", Value: group})
	}
	policies := copyPolicies(s.policies)
	policies[group] = policy
	next, err := c.build(s.members, policies)
	if err != nil {
		return err
	}
	c.current.Store(next)
	return nil
}

// Apply installs every entry of spec at once. An entry naming a group sets its policy. Any other matcher is a
// regular expression over kind names: matching kinds move into a new group named after the expression.
func (c *Classifier) Apply(spec *ErrorSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.current.Load()
	members := copyMembers(s.members)
	policies := copyPolicies(s.policies)

	var result *multierror.Error
	for _, entry := range spec.Entries {
		group := entry.Matcher
		if group == "" {
			group = CatchAllGroup
		}
		if _, exists := members[group]; exists || group == CatchAllGroup {
			policies[group] = entry.Policy
			continue
		}
		matched, err := c.matchKinds(entry.Matcher)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		moveKinds(members, group, matched)
		policies[group] = entry.Policy
	}
	if err := result.ErrorOrNil(); err != nil {
		return errors.WithStack(&benchmarkerrors.ErrConfiguration{Message: err.Error()})
	}
	next, err := c.build(members, policies)
	if err != nil {
		return err
	}
	c.current.Store(next)
	return nil
}

func (c *Classifier) matchKinds(pattern string) ([]string, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("%q is neither a group nor a valid pattern: %s", pattern, err)
	}
	var matched []string
	for _, kind := range c.table.Kinds() {
		if re.MatchString(kind.Name) {
			matched = append(matched, kind.Name)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%q is not a group and matches no error kind", pattern)
	}
	return matched, nil
}

// build validates members and policies and flattens group membership over the kind hierarchy.
func (c *Classifier) build(members map[string][]string, policies map[string]Policy) (*snapshot, error) {
	if _, ok := policies[CatchAllGroup]; !ok {
		return nil, errors.WithStack(&benchmarkerrors.ErrConfiguration{Message: "the catch-all group needs a policy"})
	}
	if _, ok := members[CatchAllGroup]; ok {
		return nil, errors.WithStack(&benchmarkerrors.ErrConfiguration{
			Message: fmt.Sprintf("%q is reserved for errors that match no group", CatchAllGroup),
		})
	}

	var result *multierror.Error
	explicit := make(map[string]string)
	for group, kinds := range members {
		for _, name := range kinds {
			if _, ok := c.table.Get(name); !ok {
				result = multierror.Append(result, fmt.Errorf("group %q lists unknown kind %q", group, name))
				continue
			}
			if other, taken := explicit[name]; taken && other != group {
				result = multierror.Append(result, fmt.Errorf("kind %q is listed in both %q and %q", name, other, group))
				continue
			}
			explicit[name] = group
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, errors.WithStack(&benchmarkerrors.ErrConfiguration{Message: err.Error()})
	}

	// A kind belongs to the group of its nearest listed ancestor, itself included.
	kindGroup := make(map[string]string)
	for _, kind := range c.table.Kinds() {
		if group, ok := explicit[kind.Name]; ok {
			kindGroup[kind.Name] = group
			continue
		}
		for _, ancestor := range c.table.Ancestors(kind.Name) {
			if group, ok := explicit[ancestor]; ok {
				kindGroup[kind.Name] = group
				break
			}
		}
	}
	if err := c.checkCodes(kindGroup, policies); err != nil {
		return nil, err
	}
	return &snapshot{members: members, kindGroup: kindGroup, policies: policies}, nil
}

// checkCodes rejects code overrides that would make a recorded result code ambiguous: a code shared by two
// groups, a reserved code, or the code of a kind that belongs to another group.
func (c *Classifier) checkCodes(kindGroup map[string]string, policies map[string]Policy) error {
	groups := make([]string, 0, len(policies))
	for group, policy := range policies {
		if policy.Code != nil {
			groups = append(groups, group)
		}
	}
	sort.Strings(groups)

	var result *multierror.Error
	owners := make(map[marker.ResultCode]string)
	for _, group := range groups {
		code := *policies[group].Code
		if other, taken := owners[code]; taken {
			result = multierror.Append(result, fmt.Errorf("groups %q and %q both set code %d", other, group, code))
			continue
		}
		owners[code] = group
		switch {
		case code == CodeOK:
			result = multierror.Append(result, fmt.Errorf("group %q: code %d means success", group, code))
		case code > MaxKindCode:
			if group != CatchAllGroup {
				result = multierror.Append(result, fmt.Errorf("group %q: code %d is reserved for %q", group, code, CatchAllGroup))
			}
		default:
			for _, kind := range c.table.Kinds() {
				if kind.Code != code {
					continue
				}
				owner, ok := kindGroup[kind.Name]
				if !ok {
					owner = CatchAllGroup
				}
				if owner != group {
					result = multierror.Append(result,
						fmt.Errorf("group %q: code %d is already the code of kind %q in group %q", group, code, kind.Name, owner))
				}
			}
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return errors.WithStack(&benchmarkerrors.ErrConfiguration{Message: err.Error()})
	}
	return nil
}

func copyMembers(members map[string][]string) map[string][]string {
	copied := make(map[string][]string, len(members))
	for group, kinds := range members {
		copied[group] = append([]string(nil), kinds...)
	}
	return copied
}

func copyPolicies(policies map[string]Policy) map[string]Policy {
	copied := make(map[string]Policy, len(policies))
	for group, policy := range policies {
		copied[group] = policy
	}
	return copied
}

// moveKinds makes kinds the members of group and removes them from every other group.
func moveKinds(members map[string][]string, group string, kinds []string) {
	moving := make(map[string]bool, len(kinds))
	for _, kind := range kinds {
		moving[kind] = true
	}
	for other, listed := range members {
		if other == group {
			continue
		}
		kept := listed[:0]
		for _, kind := range listed {
			if !moving[kind] {
				kept = append(kept, kind)
			}
		}
		members[other] = kept
	}
	members[group] = append([]string(nil), kinds...)
}

var annotationTypes = map[reflect.Type]bool{
	reflect.TypeOf(errors.WithStack(errAnnotationSample)):             true,
	reflect.TypeOf(errors.WithMessage(errAnnotationSample, "sample")): true,
	reflect.TypeOf(fmt.Errorf("sample: %w", errAnnotationSample)):     true,
}

var errAnnotationSample = fmt.Errorf("sample")

// stripAnnotations removes wrappers that only add a stack or a message.
func stripAnnotations(err error) error {
	for err != nil && annotationTypes[reflect.TypeOf(err)] {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return err
}

func unwrapOnce(err error) error {
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return e.Unwrap()
	case interface{ Cause() error }:
		return e.Cause()
	}
	return nil
}
