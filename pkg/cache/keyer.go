package cache

// Keyer derives cache keys.
type Keyer interface {
	// AssignmentKey returns the key of a solved assignment for the grid pair
	// fingerprinted by gridsHash.
	AssignmentKey(gridsHash string, opts AssignmentKeyOpts) string
}

// AssignmentKeyOpts lists every parameter that changes a solver's output.
type AssignmentKeyOpts struct {
	Algorithm           string  `json:"algorithm"`
	ProximityImportance float64 `json:"proximity_importance"`
	// Params holds solver-specific parameters (e.g. genetic tuning). It is
	// hashed through its JSON encoding.
	Params any `json:"params,omitempty"`
}

// DefaultKeyer produces unprefixed keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// AssignmentKey hashes the grid fingerprint and options.
func (DefaultKeyer) AssignmentKey(gridsHash string, opts AssignmentKeyOpts) string {
	return hashKey("assignment", gridsHash, opts)
}

// ScopedKeyer prefixes every key of an inner Keyer, giving each deployment
// sharing a Redis instance its own namespace.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// A nil inner keyer uses DefaultKeyer.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// AssignmentKey generates a prefixed assignment key.
func (k *ScopedKeyer) AssignmentKey(gridsHash string, opts AssignmentKeyOpts) string {
	return k.prefix + k.inner.AssignmentKey(gridsHash, opts)
}
