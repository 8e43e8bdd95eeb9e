// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package recommend

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinTasksLength    = 10
	MaxTasksLength    = 5000
	MaxRoleLength     = 200
	MaxCategoryHints  = 20
	maxCategoryIDSize = 200
)

// InputValidationError rejects a WorkflowInput before any provider is called.
type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsInputValidation reports whether err is, or wraps, an InputValidationError.
func IsInputValidation(err error) bool {
	var validationErr *InputValidationError
	return errors.As(err, &validationErr)
}

// Validate checks the bounds on every field. Lengths count characters, not bytes.
func (in WorkflowInput) Validate() error {
	tasks := utf8.RuneCountInString(strings.TrimSpace(in.Tasks))
	if tasks < MinTasksLength {
		return &InputValidationError{Field: "tasks", Reason: fmt.Sprintf("must be at least %d characters", MinTasksLength)}
	}
	if utf8.RuneCountInString(in.Tasks) > MaxTasksLength {
		return &InputValidationError{Field: "tasks", Reason: fmt.Sprintf("must be at most %d characters", MaxTasksLength)}
	}
	if utf8.RuneCountInString(in.Role) > MaxRoleLength {
		return &InputValidationError{Field: "role", Reason: fmt.Sprintf("must be at most %d characters", MaxRoleLength)}
	}
	if len(in.CategoryIDs) > MaxCategoryHints {
		return &InputValidationError{Field: "categoryIds", Reason: fmt.Sprintf("must list at most %d categories", MaxCategoryHints)}
	}
	for _, id := range in.CategoryIDs {
		if strings.TrimSpace(id) == "" || len(id) > maxCategoryIDSize {
			return &InputValidationError{Field: "categoryIds", Reason: fmt.Sprintf("invalid category id %q", id)}
		}
	}
	return nil
}
