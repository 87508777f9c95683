// Package errutil contains small error-handling helpers.
package errutil

import "fmt"

// RunAndSetError runs f and, if it fails while *err is still nil, wraps
// the failure with msg into *err. Meant for deferred cleanups whose
// errors should not be dropped.
func RunAndSetError(f func() error, err *error, msg string) {
	ferr := f()
	if ferr != nil && *err == nil {
		*err = fmt.Errorf("%s: %w", msg, ferr)
	}
}
