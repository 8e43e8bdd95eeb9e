// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package catalog

import (
	"errors"
	"fmt"
)

// ErrStatusNotRetrievable is returned when a search asks for tools in a
// moderation state other than approved.
var ErrStatusNotRetrievable = errors.New("only approved tools can be retrieved")

// ErrNotFound is returned by writers when the referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleRevision is returned by UpdateEmbedding when the tool was edited
// after the revision the derived fields were built from.
var ErrStaleRevision = errors.New("tool changed since it was read")

// CatalogUnavailableError reports that the catalog store could not be reached
// or failed to answer a query.
type CatalogUnavailableError struct {
	Op  string
	Err error
}

func (e *CatalogUnavailableError) Error() string {
	return fmt.Sprintf("catalog unavailable: %s: %v", e.Op, e.Err)
}

func (e *CatalogUnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as a CatalogUnavailableError unless it already is one.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var unavailable *CatalogUnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	return &CatalogUnavailableError{Op: op, Err: err}
}

// IsUnavailable reports whether err is, or wraps, a CatalogUnavailableError.
func IsUnavailable(err error) bool {
	var unavailable *CatalogUnavailableError
	return errors.As(err, &unavailable)
}
