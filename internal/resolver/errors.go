package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoPath reports that traversal stopped at a namespace holding no
// usable resolver record. Distinct from a detected cycle.
var ErrNoPath = errors.New("resolver: no resolution path")

// ErrResolutionTimeout reports that traversal exceeded the configured
// resolution timeout.
var ErrResolutionTimeout = errors.New("resolver: resolution timed out")

// CircularReferenceError reports that traversal revisited a namespace.
type CircularReferenceError struct {
	Chain []string
}

func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("resolver: circular reference: %s", strings.Join(e.Chain, " -> "))
}

// DepthExceededError reports that traversal needed more hops than the
// configured maximum.
type DepthExceededError struct {
	MaxDepth int
	Chain    []string
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("resolver: resolution depth %d exceeded: %s", e.MaxDepth, strings.Join(e.Chain, " -> "))
}

// AccessDeniedError reports that the resolved namespace's access
// policy rejects the requesting namespace.
type AccessDeniedError struct {
	Namespace string
	Requester string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("resolver: namespace %q denies access to %q", e.Namespace, e.Requester)
}
