package httputil_test

import (
	"testing"

	"github.com/xeptore/spotd/httputil"
)

func TestIsEmptyJSONValue(t *testing.T) {
	t.Parallel()

	empty := []any{nil, map[string]any{}, []any{}, ""}
	for _, v := range empty {
		if !httputil.IsEmptyJSONValue(v) {
			t.Errorf("expected %#v to be considered empty", v)
		}
	}

	nonEmpty := []any{map[string]any{"items": []any{}}, []any{1.0}, "x", 0.0, false}
	for _, v := range nonEmpty {
		if httputil.IsEmptyJSONValue(v) {
			t.Errorf("expected %#v to be considered non-empty", v)
		}
	}
}
