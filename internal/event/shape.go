package event

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/dshills/modhost/internal/event/topic"
)

// ShapeID identifies an event shape. Concrete shapes are usually pointer
// types; dispatchable ancestors are interface types the concrete shape
// implements.
type ShapeID = reflect.Type

// ShapeOf returns the ShapeID of T.
func ShapeOf[T any]() ShapeID {
	return reflect.TypeFor[T]()
}

// Descriptor is the static metadata of one shape.
type Descriptor struct {
	// Name is the shape's dot-separated name, unique across shapes.
	Name topic.Topic

	// Variant selects sync/async and cancelable dispatch.
	Variant Variant

	// Parents lists the ancestor shapes in the order their branches are
	// walked when building the fan-out chain.
	Parents []ShapeID

	// Dispatchable marks the shape as a base that descendants fan out to.
	// Without the mark the shape still has its own dispatcher, but it ends
	// every descendant's chain branch that reaches it.
	Dispatchable bool
}

func (d Descriptor) equal(o Descriptor) bool {
	if d.Name != o.Name || d.Variant != o.Variant || d.Dispatchable != o.Dispatchable {
		return false
	}
	if len(d.Parents) != len(o.Parents) {
		return false
	}
	for i := range d.Parents {
		if d.Parents[i] != o.Parents[i] {
			return false
		}
	}
	return true
}

var catalog = struct {
	mu     sync.RWMutex
	shapes map[ShapeID]Descriptor
	names  map[topic.Topic]ShapeID
	chains map[ShapeID][]ShapeID

	// pinned holds undeclared parents that a cached chain walked past.
	// Declaring one of them later would change that chain.
	pinned map[ShapeID]bool
}{
	shapes: make(map[ShapeID]Descriptor),
	names:  make(map[topic.Topic]ShapeID),
	chains: make(map[ShapeID][]ShapeID),
	pinned: make(map[ShapeID]bool),
}

// Declare records the descriptor of shape T. Declaring the same descriptor
// twice is a no-op; a conflicting declaration is an error. Fan-out chains
// are fixed once computed, so declaring a parent that an existing chain was
// built without fails with ErrChainFixed.
func Declare[T any](desc Descriptor) error {
	return declare(ShapeOf[T](), desc)
}

// MustDeclare is like Declare but panics on error. Intended for init().
func MustDeclare[T any](desc Descriptor) {
	if err := Declare[T](desc); err != nil {
		panic(err)
	}
}

func declare(shape ShapeID, desc Descriptor) error {
	if err := validateDescriptor(shape, desc); err != nil {
		return err
	}
	desc.Parents = append([]ShapeID(nil), desc.Parents...)

	catalog.mu.Lock()
	defer catalog.mu.Unlock()

	if existing, ok := catalog.shapes[shape]; ok {
		if existing.equal(desc) {
			return nil
		}
		return fmt.Errorf("%w: %v already declared as %q", ErrDuplicateShape, shape, existing.Name)
	}
	if other, ok := catalog.names[desc.Name]; ok {
		return fmt.Errorf("%w: name %q already used by %v", ErrDuplicateShape, desc.Name, other)
	}
	if catalog.pinned[shape] {
		return fmt.Errorf("%w: %v is a parent of a shape already in use", ErrChainFixed, shape)
	}

	catalog.shapes[shape] = desc
	catalog.names[desc.Name] = shape
	return nil
}

func validateDescriptor(shape ShapeID, desc Descriptor) error {
	if shape == nil {
		return fmt.Errorf("%w: nil shape", ErrInvalidDescriptor)
	}
	if !desc.Name.IsName() {
		return fmt.Errorf("%w: %v has invalid name %q", ErrInvalidDescriptor, shape, desc.Name)
	}
	if !desc.Variant.IsValid() {
		return fmt.Errorf("%w: %v has invalid variant %d", ErrInvalidDescriptor, shape, desc.Variant)
	}
	if desc.Variant.IsCancelable() && !shape.Implements(reflect.TypeFor[Cancelable]()) {
		return fmt.Errorf("%w: %v is %s but does not implement Cancelable", ErrInvalidDescriptor, shape, desc.Variant)
	}

	seen := make(map[ShapeID]bool, len(desc.Parents))
	for _, p := range desc.Parents {
		switch {
		case p == nil:
			return fmt.Errorf("%w: %v has a nil parent", ErrInvalidDescriptor, shape)
		case p == shape:
			return fmt.Errorf("%w: %v lists itself as a parent", ErrInvalidDescriptor, shape)
		case p.Kind() != reflect.Interface:
			return fmt.Errorf("%w: parent %v of %v is not an interface", ErrInvalidDescriptor, p, shape)
		case !shape.Implements(p):
			return fmt.Errorf("%w: %v does not implement parent %v", ErrInvalidDescriptor, shape, p)
		case seen[p]:
			return fmt.Errorf("%w: %v lists parent %v twice", ErrInvalidDescriptor, shape, p)
		}
		seen[p] = true
	}
	return nil
}

// Lookup returns the descriptor of a declared shape.
func Lookup(shape ShapeID) (Descriptor, bool) {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	d, ok := catalog.shapes[shape]
	return d, ok
}

// ShapeNamed returns the shape declared under name.
func ShapeNamed(name topic.Topic) (ShapeID, bool) {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	s, ok := catalog.names[name]
	return s, ok
}

// Names returns every declared shape name, sorted.
func Names() []topic.Topic {
	catalog.mu.RLock()
	names := make([]topic.Topic, 0, len(catalog.names))
	for n := range catalog.names {
		names = append(names, n)
	}
	catalog.mu.RUnlock()

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// NameOf returns the declared name of shape, or its Go type name if the
// shape is unknown.
func NameOf(shape ShapeID) string {
	if d, ok := Lookup(shape); ok {
		return d.Name.String()
	}
	return fmt.Sprint(shape)
}
