package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter bounded by
// [lo, hi], returning fallback when it is absent.
func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw, present := r.URL.Query()[key]
	if !present || strings.TrimSpace(raw[0]) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw[0]))
	switch {
	case err != nil:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be an integer").
			WithDetails(map[string]any{"field": key})
	case n < lo || n > hi:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi})
	}
	return n, nil
}
