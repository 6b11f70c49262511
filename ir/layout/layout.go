// Package layout defines the encoding (physical/distributed layout) metadata
// that can be attached to TileIR tensor types, and the narrow capability
// surface the op verifiers use to reason about it.
//
// Encodings are opaque to the rest of the IR: an op only knows that an
// encoding has a Kind and belongs to a Dialect. A dialect that knows how to
// lay out matmul operands additionally implements DotOperandLayoutInferrer;
// the verifiers look the capability up with a plain interface upcast, so
// new dialects plug in without the core changing.
//
// All registry lookups are read-only after init time and therefore safe for
// concurrent use by independent verification goroutines.
package layout

import (
	"fmt"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Encoding is layout/distribution metadata attached to a tensor type.
// It is opaque to the op verifiers except for its Kind, which keys the
// owning dialect.
type Encoding interface {
	// Kind uniquely identifies the encoding variant, e.g. "gpu.blocked".
	// By convention it is prefixed with the owning dialect's name.
	Kind() string

	// String returns the full textual form, e.g. "gpu.dot_operand<0, gpu.blocked<4>>".
	String() string
}

// Dialect owns one or more encoding kinds. Capabilities beyond naming are
// expressed as additional interfaces the dialect may implement.
type Dialect interface {
	Name() string
}

// DotOperandLayoutInferrer is the capability a dialect implements when it can
// reason about matmul (dot) operand layouts.
//
// Implementations must be reentrant: the verifiers may call them from
// multiple goroutines at once.
type DotOperandLayoutInferrer interface {
	// InferDotOperandEncoding returns the encoding the dot operand with index
	// operandIdx (0 for A/LHS, 1 for B/RHS) must carry so that the dot result
	// has the result encoding. It returns an error if encoding is not a valid
	// operand layout for that result.
	InferDotOperandEncoding(encoding Encoding, operandIdx int, result Encoding) (Encoding, error)

	// VerifyDotEncodingCompatibility checks that the A and B operand encodings
	// of the given op can feed the same dot. The op is only used for error
	// messages.
	VerifyDotEncodingCompatibility(op fmt.Stringer, a, b Encoding) error
}

var (
	muRegistry      sync.RWMutex
	kindToDialect   = make(map[string]Dialect)
	aliasToEncoding = make(map[string]Encoding)
	encodingToAlias = make(map[string]string) // keyed by Encoding.String()
)

// RegisterKind associates an encoding kind with its owning dialect.
// Registering the same kind twice panics: kinds are global and unique.
func RegisterKind(kind string, dialect Dialect) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if prev, found := kindToDialect[kind]; found {
		exceptions.Panicf("layout.RegisterKind(%q): kind already registered by dialect %q", kind, prev.Name())
	}
	kindToDialect[kind] = dialect
}

// DialectOf returns the dialect owning the encoding's kind.
func DialectOf(encoding Encoding) (Dialect, error) {
	muRegistry.RLock()
	defer muRegistry.RUnlock()
	dialect, found := kindToDialect[encoding.Kind()]
	if !found {
		return nil, errors.Errorf("no dialect registered for encoding kind %q", encoding.Kind())
	}
	return dialect, nil
}

// RegisterAlias gives an encoding a short name that the textual IR can refer
// to as `#name`. Aliases are bidirectional: printing a tensor type carrying
// the encoding uses the alias again, so the text round-trips.
func RegisterAlias(name string, encoding Encoding) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if prev, found := aliasToEncoding[name]; found && prev.String() != encoding.String() {
		exceptions.Panicf("layout.RegisterAlias(%q): alias already bound to %s", name, prev)
	}
	aliasToEncoding[name] = encoding
	encodingToAlias[encoding.String()] = name
}

// ByAlias resolves a `#name` reference from the textual IR.
func ByAlias(name string) (Encoding, bool) {
	muRegistry.RLock()
	defer muRegistry.RUnlock()
	encoding, found := aliasToEncoding[name]
	return encoding, found
}

// AliasOf returns the registered alias for the encoding, if any.
func AliasOf(encoding Encoding) (string, bool) {
	muRegistry.RLock()
	defer muRegistry.RUnlock()
	name, found := encodingToAlias[encoding.String()]
	return name, found
}

// Equal compares two encodings. Encodings are value-like; two encodings are
// the same iff they print the same.
func Equal(a, b Encoding) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}
