package ngssc

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// Markers wrapping an inserted configuration block so it can be found and replaced again
const (
	MarkerStart = "<!--ngssc-->"
	MarkerEnd   = "<!--/ngssc-->"
)

// Values maps variable names to resolved values. A nil value means the variable is not set.
type Values map[string]*string

// Lookup resolves a single variable, reporting whether it is set
type Lookup func(name string) (string, bool)

// Populate resolves every name with lookup, which defaults to os.LookupEnv.
// Variables set to an empty string keep the empty string.
func Populate(names []string, lookup Lookup) Values {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	values := make(Values, len(names))
	for _, name := range names {
		if value, ok := lookup(name); ok {
			values[name] = &value
		} else {
			values[name] = nil
		}
	}
	return values
}

// assigner returns how the serialized values are assigned for a variant
func assigner(variant Variant) (func(payload string) string, error) {
	switch variant {
	case VariantProcess:
		return func(payload string) string {
			return "self.process=self.process||{};self.process.env=" + payload
		}, nil
	case VariantNgEnv:
		return func(payload string) string {
			return "self.NG_ENV=" + payload
		}, nil
	case VariantGlobal:
		return func(payload string) string {
			return "Object.assign(self," + payload + ")"
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
}

// RenderIIFE renders the self-invoking function assigning values for variant.
// Keys are emitted in sorted order so equal input renders identical output.
func RenderIIFE(variant Variant, values Values) (string, error) {
	assign, err := assigner(variant)
	if err != nil {
		return "", err
	}
	if values == nil {
		values = Values{}
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode environment variables: %w", err)
	}
	return fmt.Sprintf("(function(self){%s;})(window)", assign(string(payload))), nil
}

// RenderScript renders the IIFE inside a script tag wrapped by the ngssc markers
func RenderScript(variant Variant, values Values) (string, error) {
	iife, err := RenderIIFE(variant, values)
	if err != nil {
		return "", err
	}
	return MarkerStart + "<script>" + iife + "</script>" + MarkerEnd, nil
}
