package iterutil

import (
	"iter"
)

// Offsets yields 0, step, 2*step, ... without end. The consumer decides
// when a paginated sweep is over and stops ranging.
func Offsets(step int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for offset := 0; ; offset += step {
			if !yield(offset) {
				return
			}
		}
	}
}
