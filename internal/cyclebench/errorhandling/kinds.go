package errorhandling

import (
	"fmt"
	"net"
	"reflect"

	"github.com/armadaproject/cyclebench/internal/cyclebench/marker"
)

// RootKind is the implicit parent of every top level kind. Its type is the error interface.
const RootKind = "error"

// Reserved result codes. Codes 1 to MaxKindCode are available to registered kinds.
const (
	CodeOK           marker.ResultCode = 0
	MaxKindCode      marker.ResultCode = 125
	CodeBindFailure  marker.ResultCode = 126
	CodeUnclassified marker.ResultCode = 127
)

// KindSpec describes a failure kind at registration.
type KindSpec struct {
	// Unique name, e.g. "redis.Nil" or "timeout".
	Name string
	// Name of the kind this one specialises. Defaults to RootKind.
	Parent string
	// Stable result code reported for errors of this kind. Never renumber a released kind.
	Code marker.ResultCode
	// Group the kind belongs to unless the group table says otherwise. Optional.
	Group string
}

// Kind is a registered failure kind.
type Kind struct {
	Name     string
	Parent   string
	Code     marker.ResultCode
	Group    string
	Type     reflect.Type
	Sentinel error
	depth    int
	order    int
}

func (k *Kind) String() string {
	if k.Sentinel != nil {
		return fmt.Sprintf("%s (sentinel %s)", k.Name, k.Type)
	}
	return fmt.Sprintf("%s (%s)", k.Name, k.Type)
}

// IsInterface is true if errors are matched to this kind by implementing an interface.
func (k *Kind) IsInterface() bool {
	return k.Sentinel == nil && k.Type != nil && k.Type.Kind() == reflect.Interface
}

// KindRegistry collects kind registrations. Problems are reported together by Build.
type KindRegistry struct {
	kinds []*Kind
	errs  []error
}

// NewKindRegistry returns a registry holding the root kind and the kinds every driver shares.
func NewKindRegistry() *KindRegistry {
	r := &KindRegistry{}
	registerBuiltinKinds(r)
	return r
}

// Register adds a kind matched by the Go type E. E may be an interface type, in which case any error
// implementing it that is not registered more specifically resolves to this kind.
func Register[E error](r *KindRegistry, spec KindSpec) {
	r.add(spec, reflect.TypeOf((*E)(nil)).Elem(), nil)
}

// RegisterSentinel adds a kind matched by identity with a sentinel error value, such as context.Canceled.
func (r *KindRegistry) RegisterSentinel(spec KindSpec, sentinel error) {
	if sentinel == nil {
		r.errs = append(r.errs, fmt.Errorf("kind %q: sentinel must not be nil", spec.Name))
		return
	}
	t := reflect.TypeOf(sentinel)
	if !t.Comparable() {
		r.errs = append(r.errs, fmt.Errorf("kind %q: sentinel of type %s is not comparable", spec.Name, t))
		return
	}
	r.add(spec, t, sentinel)
}

func (r *KindRegistry) add(spec KindSpec, t reflect.Type, sentinel error) {
	parent := spec.Parent
	if parent == "" && spec.Name != RootKind {
		parent = RootKind
	}
	r.kinds = append(r.kinds, &Kind{
		Name:     spec.Name,
		Parent:   parent,
		Code:     spec.Code,
		Group:    spec.Group,
		Type:     t,
		Sentinel: sentinel,
		order:    len(r.kinds),
	})
}

func registerBuiltinKinds(r *KindRegistry) {
	Register[error](r, KindSpec{Name: RootKind})
	Register[Timeout](r, KindSpec{Name: KindTimeout, Code: 10, Group: GroupRetryable})
	Register[net.Error](r, KindSpec{Name: KindNetwork, Parent: KindTimeout, Code: 11, Group: GroupRetryable})
	r.RegisterSentinel(KindSpec{Name: KindDeadlineExceeded, Parent: KindTimeout, Code: 12, Group: GroupRetryable}, contextDeadlineExceeded)
	r.RegisterSentinel(KindSpec{Name: KindCanceled, Code: 13}, contextCanceled)
	Register[*UnverifiedError](r, KindSpec{Name: KindUnverified, Code: 20, Group: GroupUnverified})
	Register[*UnappliedError](r, KindSpec{Name: KindUnapplied, Code: 21, Group: GroupUnapplied})
}
