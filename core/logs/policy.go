package logs

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
)

// ErrorHandling is the reaction to a consistency violation.
type ErrorHandling int

const (
	ErrorHandlingIgnore ErrorHandling = iota
	ErrorHandlingWarn
	ErrorHandlingRaise
)

func (handling ErrorHandling) String() string {
	switch handling {
	case ErrorHandlingWarn:
		return "warn"
	case ErrorHandlingRaise:
		return "raise"
	default:
		return "ignore"
	}
}

// ParseErrorHandling accepts ignore, warn, or raise. Empty means ignore.
func ParseErrorHandling(raw string) (ErrorHandling, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "ignore":
		return ErrorHandlingIgnore, nil
	case "warn":
		return ErrorHandlingWarn, nil
	case "raise":
		return ErrorHandlingRaise, nil
	default:
		return ErrorHandlingIgnore, coreerrors.Newf(
			coreerrors.ErrUsage,
			"error_handling_unknown",
			"use one of ignore, warn, raise",
			"unknown error handling %q", raw,
		)
	}
}

// Violation is one failed consistency check.
type Violation struct {
	Code    string
	Message string
}

// checkMonotonic reports whether any source file goes back in time in its own
// row order, or whether the sorted stream repeats an identical record.
func checkMonotonic(sorted []Record) *Violation {
	lastBySource := map[string]Record{}
	for _, record := range byLoadOrder(sorted) {
		previous, seen := lastBySource[record.Source]
		if seen && record.Timestamp.Before(previous.Timestamp) {
			return &Violation{
				Code: "log_not_monotonic",
				Message: fmt.Sprintf(
					"timestamps decrease in %s at line %d (%s after %s)",
					record.Source, record.Line,
					record.Timestamp.Format(payloadLayoutF), previous.Timestamp.Format(payloadLayoutF),
				),
			}
		}
		lastBySource[record.Source] = record
	}
	for index := 1; index < len(sorted); index++ {
		previous, current := sorted[index-1], sorted[index]
		if current.Timestamp.Equal(previous.Timestamp) && current.Action == previous.Action && current.Payload == previous.Payload {
			return &Violation{
				Code: "log_not_monotonic",
				Message: fmt.Sprintf(
					"duplicate %s record at %s (%s line %d, %s line %d)",
					current.Action, current.Timestamp.Format(payloadLayoutF),
					previous.Source, previous.Line, current.Source, current.Line,
				),
			}
		}
	}
	return nil
}

func byLoadOrder(sorted []Record) []Record {
	ordered := make([]Record, len(sorted))
	copy(ordered, sorted)
	slices.SortStableFunc(ordered, func(a, b Record) int {
		if a.Source != b.Source {
			return strings.Compare(a.Source, b.Source)
		}
		return cmp.Compare(a.Line, b.Line)
	})
	return ordered
}

func checkRegistration(subjectID string) *Violation {
	if subjectID != "" {
		return nil
	}
	return &Violation{
		Code:    "log_registration_missing",
		Message: "action 'subject_id_set' not found, log data may be invalid",
	}
}

// enforce applies handling to the violations in order. Under raise the first
// violation is returned as an error.
func enforce(handling ErrorHandling, logger *zap.Logger, source string, violations ...*Violation) error {
	for _, violation := range violations {
		if violation == nil {
			continue
		}
		switch handling {
		case ErrorHandlingRaise:
			return coreerrors.Newf(
				coreerrors.ErrLogDataParse,
				violation.Code,
				"inspect the exported log files or load with error handling warn",
				"%s: %s", source, violation.Message,
			)
		case ErrorHandlingWarn:
			logger.Warn(violation.Message, zap.String("source", source), zap.String("code", violation.Code))
		}
	}
	return nil
}
