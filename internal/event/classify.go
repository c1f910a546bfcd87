package event

import "fmt"

// Classify returns the variant of a declared shape.
func Classify(shape ShapeID) (Variant, error) {
	d, ok := Lookup(shape)
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownShape, shape)
	}
	return d.Variant, nil
}

// FanOutChain returns the shapes an occurrence of shape is delivered
// through: shape itself, then every dispatchable ancestor reached by walking
// each declared parent branch depth-first. An ancestor that is not
// dispatchable (or not declared) ends its branch. A shape reached through
// two branches appears once, at its first position.
//
// The result is computed once per shape and cached; it must not be
// modified.
func FanOutChain(shape ShapeID) ([]ShapeID, error) {
	catalog.mu.RLock()
	chain, ok := catalog.chains[shape]
	catalog.mu.RUnlock()
	if ok {
		return chain, nil
	}

	catalog.mu.Lock()
	defer catalog.mu.Unlock()

	if chain, ok := catalog.chains[shape]; ok {
		return chain, nil
	}
	if _, ok := catalog.shapes[shape]; !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownShape, shape)
	}

	chain = []ShapeID{shape}
	seen := map[ShapeID]bool{shape: true}

	var walk func(s ShapeID)
	walk = func(s ShapeID) {
		for _, p := range catalog.shapes[s].Parents {
			pd, ok := catalog.shapes[p]
			if !ok {
				catalog.pinned[p] = true
				continue
			}
			if !pd.Dispatchable || seen[p] {
				continue
			}
			seen[p] = true
			chain = append(chain, p)
			walk(p)
		}
	}
	walk(shape)

	catalog.chains[shape] = chain
	return chain, nil
}

// declaresAncestor reports whether ancestor is reachable from shape through
// declared parents, whether or not it is dispatchable.
func declaresAncestor(shape, ancestor ShapeID) bool {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()

	seen := make(map[ShapeID]bool)
	var walk func(s ShapeID) bool
	walk = func(s ShapeID) bool {
		for _, p := range catalog.shapes[s].Parents {
			if p == ancestor {
				return true
			}
			if seen[p] {
				continue
			}
			seen[p] = true
			if walk(p) {
				return true
			}
		}
		return false
	}
	return walk(shape)
}
