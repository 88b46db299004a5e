package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"
)

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// structError converts validator output into a ConfigurationError naming the
// first offending field.
func structError(scope string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return NewConfigurationError(
			scope+"."+fe.Field(),
			"failed %q constraint (value %v)", fe.Tag(), fe.Value(),
		)
	}
	return NewConfigurationError(scope, "%v", err)
}

// sortedKeys returns the keys of m in ascending order.
// Used wherever iteration order would otherwise leak into results.
func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// duplicateName returns the first name that appears twice, if any.
func duplicateName(names []string) (string, bool) {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return n, true
		}
		seen[n] = struct{}{}
	}
	return "", false
}

func indexedScope(prefix string, i int) string { return fmt.Sprintf("%s[%d]", prefix, i) }
