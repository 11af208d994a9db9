package catalog

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound is returned when an operation targets a movie that does not exist.
	ErrNotFound = errors.New("movie not found")

	// ErrDuplicateKey is returned when a write violates a unique index.
	ErrDuplicateKey = errors.New("this record already exists")

	// ErrInvalidID matches every *InvalidIDError.
	ErrInvalidID = errors.New("invalid id")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidPage is returned for a page or limit below 1.
	ErrInvalidPage = errors.New("page and limit must be at least 1")

	// ErrInvalidSort is returned for an unknown sort field.
	ErrInvalidSort = errors.New("unknown sort field")
)

// documentValidationFailure is the server code for a write rejected by a
// collection validator.
const documentValidationFailure = 121

// InvalidIDError reports a raw identifier that is not a canonical ObjectID.
// Index is -1 for single values and the position within the input otherwise.
type InvalidIDError struct {
	Value string
	Index int
}

func (e *InvalidIDError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("ids[%d] is not a valid id: %q", e.Index, e.Value)
	}
	return fmt.Sprintf("%q is not a valid id", e.Value)
}

// Is makes errors.Is(err, ErrInvalidID) hold.
func (e *InvalidIDError) Is(target error) bool {
	return target == ErrInvalidID
}

// Violation is a single failed field constraint.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every constraint a movie failed.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// classifyWriteError separates duplicate key and validator rejections, which
// the driver reports through the same write exception types, from other
// failures of op.
func classifyWriteError(err error, op string) error {
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == documentValidationFailure {
				return &ValidationError{Violations: []Violation{{Field: "document", Message: e.Message}}}
			}
		}
	}
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorCode(documentValidationFailure) {
		return &ValidationError{Violations: []Violation{{Field: "document", Message: se.Error()}}}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
