package errors

import (
	"errors"
	"fmt"
)

type Category string

const (
	CategoryInvalidInput    Category = "invalid_input"
	CategoryNotFound        Category = "not_found"
	CategoryDataInvalid     Category = "data_invalid"
	CategoryIOFailure       Category = "io_failure"
	CategoryInternalFailure Category = "internal_failure"
)

// Sentinels matched with errors.Is through any classified wrapper.
var (
	ErrNotFound      = errors.New("not found")
	ErrFileExtension = errors.New("unexpected file extension")
	ErrLogDataParse  = errors.New("log data invalid")
	ErrUsage         = errors.New("invalid usage")
)

type classifiedError struct {
	category  Category
	code      string
	hint      string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func (e *classifiedError) Category() Category {
	return e.category
}

func (e *classifiedError) Code() string {
	return e.code
}

func (e *classifiedError) Hint() string {
	return e.hint
}

func (e *classifiedError) Retryable() bool {
	return e.retryable
}

func Wrap(cause error, category Category, code, hint string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		hint:      hint,
		retryable: retryable,
		cause:     cause,
	}
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}

// SentinelCategory is the category a failure matching sentinel belongs to.
func SentinelCategory(sentinel error) Category {
	switch {
	case errors.Is(sentinel, ErrNotFound):
		return CategoryNotFound
	case errors.Is(sentinel, ErrLogDataParse):
		return CategoryDataInvalid
	case errors.Is(sentinel, ErrFileExtension), errors.Is(sentinel, ErrUsage):
		return CategoryInvalidInput
	default:
		return CategoryInternalFailure
	}
}

// Newf formats a message, appends sentinel to its chain and classifies the
// result under the sentinel's category. Causes passed with %w stay
// matchable. Nothing built here is retryable.
func Newf(sentinel error, code, hint, format string, args ...any) error {
	return Wrap(
		fmt.Errorf("%w: %w", fmt.Errorf(format, args...), sentinel),
		SentinelCategory(sentinel),
		code,
		hint,
		false,
	)
}
