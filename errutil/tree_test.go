package errutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xeptore/spotd/errutil"
)

func TestTree(t *testing.T) {
	t.Parallel()

	t.Run("NilErr", func(t *testing.T) {
		t.Parallel()
		assert.PanicsWithValue(t, "nil error", func() { errutil.Tree(nil) })
	})

	t.Run("SimpleStringErr", func(t *testing.T) {
		t.Parallel()
		tree := errutil.Tree(errors.New("simple string error"))
		expected := errutil.ErrInfo{
			Message:  "simple string error",
			TypeName: "*errors.errorString",
			Children: nil,
		}
		assert.Equal(t, expected, tree)
	})

	t.Run("WrappedErr", func(t *testing.T) {
		t.Parallel()
		tree := errutil.Tree(fmt.Errorf("outer: %w", errors.New("inner")))
		expected := errutil.ErrInfo{
			Message:  "outer: inner",
			TypeName: "*fmt.wrapError",
			Children: []errutil.ErrInfo{
				{
					Message:  "inner",
					TypeName: "*errors.errorString",
					Children: nil,
				},
			},
		}
		assert.Equal(t, expected, tree)
	})

	t.Run("JoinedErrs", func(t *testing.T) {
		t.Parallel()
		tree := errutil.Tree(
			errors.Join(
				errors.New("first error"),
				errors.New("second error"),
			),
		)
		expected := errutil.ErrInfo{
			Message:  "first error\nsecond error",
			TypeName: "*errors.joinError",
			Children: []errutil.ErrInfo{
				{
					Message:  "first error",
					TypeName: "*errors.errorString",
					Children: nil,
				},
				{
					Message:  "second error",
					TypeName: "*errors.errorString",
					Children: nil,
				},
			},
		}
		assert.Equal(t, expected, tree)
	})

	t.Run("DeepJoinedErrs", func(t *testing.T) {
		t.Parallel()
		tree := errutil.Tree(
			errors.Join(
				errors.New("top"),
				fmt.Errorf("wrapped: %w", errors.New("bottom")),
			),
		)
		expected := errutil.ErrInfo{
			Message:  "top\nwrapped: bottom",
			TypeName: "*errors.joinError",
			Children: []errutil.ErrInfo{
				{
					Message:  "top",
					TypeName: "*errors.errorString",
					Children: nil,
				},
				{
					Message:  "wrapped: bottom",
					TypeName: "*fmt.wrapError",
					Children: []errutil.ErrInfo{
						{
							Message:  "bottom",
							TypeName: "*errors.errorString",
							Children: nil,
						},
					},
				},
			},
		}
		assert.Equal(t, expected, tree)
	})
}
