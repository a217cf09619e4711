// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package offsetalloc

import "fmt"

// ErrInvalid reports a construction-time misuse of the package: arguments
// to New that can never produce a usable Allocator. It carries the
// offending value so callers can log or compare it without parsing a
// message string.
//
// Per-call allocation failure (exhausted capacity, exhausted node pool) is
// never reported as an error; it is a sentinel/bool return from Allocate,
// so that the hot path never allocates an error value. See
// Allocator.Allocate.
type ErrInvalid struct {
	Msg string
	Arg interface{}
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("%s: %v", e.Msg, e.Arg)
}
