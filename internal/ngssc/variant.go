package ngssc

import (
	"errors"
	"fmt"
)

// Variant is the configuration namespace convention used by an application.
type Variant string

const (
	// VariantProcess exposes values as process.env.NAME.
	VariantProcess Variant = "process"
	// VariantNgEnv exposes values as NG_ENV.NAME via an imported NG_ENV object.
	VariantNgEnv Variant = "NG_ENV"
	// VariantGlobal assigns values directly onto the global object. It is never detected from source.
	VariantGlobal Variant = "global"
)

// ErrUnknownVariant is returned when a variant name is not supported.
var ErrUnknownVariant = errors.New("unknown variant")

// ParseVariant converts a descriptor value into a Variant.
func ParseVariant(value string) (Variant, error) {
	switch v := Variant(value); v {
	case VariantProcess, VariantNgEnv, VariantGlobal:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q (expected process, NG_ENV or global)", ErrUnknownVariant, value)
	}
}

// NamespaceRoot returns the identifier that roots configuration accesses for the variant,
// or an empty string for variants that are not discoverable in source.
func (v Variant) NamespaceRoot() string {
	switch v {
	case VariantProcess:
		return "process"
	case VariantNgEnv:
		return "NG_ENV"
	default:
		return ""
	}
}

func (v Variant) String() string {
	return string(v)
}
