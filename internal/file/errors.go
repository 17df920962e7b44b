package file

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("file version not found")
	// ErrInvalidVersion is returned for an empty version identifier.
	ErrInvalidVersion = errors.New("version is required")
	// ErrRetrieveFailed wraps storage failures other than a missing object.
	ErrRetrieveFailed = errors.New("retrieve file failed")
)

// NotFoundError reports that no object exists for Version.
type NotFoundError struct {
	Version string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file version '%s' not found", e.Version)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
