package suite

import (
	"fmt"
	"reflect"
)

// Check fails the current test if err is non-nil.
func Check(err error) {
	if err != nil {
		panic(fmt.Sprintf("An error occurred: %v", err))
	}
}

// Equal fails the current test unless got equals want.
func Equal[T comparable](want, got T, what string) {
	if got != want {
		panic(fmt.Sprintf("%s\n  Expected: %v\n  Actual: %v", what, want, got))
	}
}

// DeepEqual is Equal for composite values like result rows.
func DeepEqual(want, got any, what string) {
	if !reflect.DeepEqual(want, got) {
		panic(fmt.Sprintf("%s\n  Expected: %v\n  Actual: %v", what, want, got))
	}
}

// Truef fails the current test with the formatted message unless cond
// holds.
func Truef(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
