package errorhandling

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
)

const defaultResolutionCacheSize = 1024

// KindTable is the validated, immutable set of registered kinds.
type KindTable struct {
	kinds      map[string]*Kind
	byType     map[reflect.Type]*Kind
	bySentinel map[error]*Kind
	// Types of the registered sentinels; other types are never looked up by value.
	sentinelTypes map[reflect.Type]bool
	// Interface kinds, most specific first.
	interfaces []*Kind
	// reflect.Type -> resolution of types with no kind of their own.
	resolved *lru.Cache
}

type resolution struct {
	kind *Kind
}

// Build validates the registrations and returns the kind table. Every problem found is reported.
func (r *KindRegistry) Build() (*KindTable, error) {
	var result *multierror.Error
	for _, err := range r.errs {
		result = multierror.Append(result, err)
	}

	kinds := make(map[string]*Kind, len(r.kinds))
	codes := make(map[uint8]string)
	byType := make(map[reflect.Type]*Kind)
	bySentinel := make(map[error]*Kind)
	sentinelTypes := make(map[reflect.Type]bool)
	for _, kind := range r.kinds {
		if kind.Name == "" {
			result = multierror.Append(result, fmt.Errorf("kind of type %s has no name", kind.Type))
			continue
		}
		if _, exists := kinds[kind.Name]; exists {
			result = multierror.Append(result, fmt.Errorf("kind %q is registered more than once", kind.Name))
			continue
		}
		kinds[kind.Name] = kind
		if kind.Name == RootKind {
			continue
		}

		if kind.Code == CodeOK || kind.Code > MaxKindCode {
			result = multierror.Append(result, fmt.Errorf("kind %q: code %d is outside 1..%d", kind.Name, kind.Code, MaxKindCode))
		} else if other, taken := codes[uint8(kind.Code)]; taken {
			result = multierror.Append(result, fmt.Errorf("kind %q: code %d is already used by %q", kind.Name, kind.Code, other))
		} else {
			codes[uint8(kind.Code)] = kind.Name
		}

		if kind.Sentinel != nil {
			if other, taken := bySentinel[kind.Sentinel]; taken {
				result = multierror.Append(result, fmt.Errorf("kind %q: sentinel is already registered as %q", kind.Name, other.Name))
			}
			bySentinel[kind.Sentinel] = kind
			sentinelTypes[kind.Type] = true
		} else {
			if other, taken := byType[kind.Type]; taken {
				result = multierror.Append(result, fmt.Errorf("kind %q: type %s is already registered as %q", kind.Name, kind.Type, other.Name))
			}
			byType[kind.Type] = kind
		}
	}
	if _, ok := kinds[RootKind]; !ok {
		result = multierror.Append(result, fmt.Errorf("root kind %q is not registered", RootKind))
	}

	for _, kind := range r.kinds {
		if kind.Name == RootKind || kinds[kind.Name] != kind {
			continue
		}
		if err := validateAncestry(kind, kinds); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, errors.WithStack(&benchmarkerrors.ErrConfiguration{Message: err.Error()})
	}

	var interfaces []*Kind
	for _, kind := range kinds {
		kind.depth = depthOf(kind, kinds)
		if kind.IsInterface() && kind.Name != RootKind {
			interfaces = append(interfaces, kind)
		}
	}
	sort.Slice(interfaces, func(i, j int) bool {
		if interfaces[i].depth != interfaces[j].depth {
			return interfaces[i].depth > interfaces[j].depth
		}
		return interfaces[i].order < interfaces[j].order
	})

	cache, err := lru.New(defaultResolutionCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &KindTable{
		kinds:         kinds,
		byType:        byType,
		bySentinel:    bySentinel,
		sentinelTypes: sentinelTypes,
		interfaces:    interfaces,
		resolved:      cache,
	}, nil
}

// validateAncestry checks that the parent chain of kind ends at the root and that each step agrees with the
// Go type hierarchy.
func validateAncestry(kind *Kind, kinds map[string]*Kind) error {
	parent, ok := kinds[kind.Parent]
	if !ok {
		return fmt.Errorf("kind %q: parent %q is not registered", kind.Name, kind.Parent)
	}
	if !kind.Type.AssignableTo(parent.Type) {
		return fmt.Errorf("kind %q: type %s does not satisfy %s of parent %q", kind.Name, kind.Type, parent.Type, parent.Name)
	}
	seen := map[string]bool{kind.Name: true}
	for current := parent; current.Name != RootKind; {
		if seen[current.Name] {
			return fmt.Errorf("kind %q: parent chain loops through %q", kind.Name, current.Name)
		}
		seen[current.Name] = true
		next, ok := kinds[current.Parent]
		if !ok {
			return fmt.Errorf("kind %q: ancestor %q has unregistered parent %q", kind.Name, current.Name, current.Parent)
		}
		current = next
	}
	return nil
}

func depthOf(kind *Kind, kinds map[string]*Kind) int {
	depth := 0
	for current := kind; current.Name != RootKind; current = kinds[current.Parent] {
		depth++
	}
	return depth
}

// Get returns the kind with the given name.
func (t *KindTable) Get(name string) (*Kind, bool) {
	kind, ok := t.kinds[name]
	return kind, ok
}

// Kinds returns all kinds except the root, ordered by name.
func (t *KindTable) Kinds() []*Kind {
	kinds := make([]*Kind, 0, len(t.kinds))
	for _, kind := range t.kinds {
		if kind.Name != RootKind {
			kinds = append(kinds, kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Name < kinds[j].Name })
	return kinds
}

// Ancestors returns the names of kind's parents, nearest first, excluding the root.
func (t *KindTable) Ancestors(name string) []string {
	var ancestors []string
	kind, ok := t.kinds[name]
	for ok && kind.Name != RootKind {
		kind, ok = t.kinds[kind.Parent]
		if ok && kind.Name != RootKind {
			ancestors = append(ancestors, kind.Name)
		}
	}
	return ancestors
}

// Lookup finds the kind of err itself, without looking at anything it wraps.
// Sentinels are matched before types.
func (t *KindTable) Lookup(err error) (*Kind, bool) {
	if err == nil {
		return nil, false
	}
	errType := reflect.TypeOf(err)
	if t.sentinelTypes[errType] {
		if kind, ok := t.bySentinel[err]; ok {
			return kind, true
		}
	}
	if kind, ok := t.byType[errType]; ok {
		return kind, true
	}
	return t.resolve(errType)
}

// resolve matches a type with no kind of its own to the most specific interface kind it implements.
func (t *KindTable) resolve(errType reflect.Type) (*Kind, bool) {
	if cached, ok := t.resolved.Get(errType); ok {
		r := cached.(resolution)
		return r.kind, r.kind != nil
	}
	var found *Kind
	for _, kind := range t.interfaces {
		if errType.Implements(kind.Type) {
			found = kind
			break
		}
	}
	t.resolved.Add(errType, resolution{kind: found})
	return found, found != nil
}
