package core

import (
	"reflect"

	"github.com/encodeous/ratemesh/state"
)

// Get returns the module of type T. It must only be called on the dispatch goroutine.
func Get[T state.NyModule](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}
