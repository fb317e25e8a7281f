package main

import (
	"encoding/json"
	"fmt"
	"strings"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
)

// errorFields is embedded in every command output so failures share one
// envelope.
type errorFields struct {
	Error         string `json:"error,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
	Hint          string `json:"hint,omitempty"`
}

func fieldsForError(err error) errorFields {
	if err == nil {
		return errorFields{}
	}
	return errorFields{
		Error:         err.Error(),
		ErrorCode:     coreerrors.CodeOf(err),
		ErrorCategory: string(coreerrors.CategoryOf(err)),
		Hint:          coreerrors.HintOf(err),
	}
}

func usageFields(message string) errorFields {
	return errorFields{Error: message}
}

func writeJSONOutput(output any, exitCode int) int {
	encoded, err := marshalOutputWithErrorEnvelope(output, exitCode)
	if err != nil {
		fmt.Println(`{"ok":false,"error":"failed to encode output","error_code":"encode_failed","error_category":"internal_failure","retryable":false}`)
		return exitInternalFailure
	}
	fmt.Println(string(encoded))
	return exitCode
}

func marshalOutputWithErrorEnvelope(output any, exitCode int) ([]byte, error) {
	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	if correlationID := currentCorrelationID(); correlationID != "" && asString(result["correlation_id"]) == "" {
		result["correlation_id"] = correlationID
	}
	if strings.TrimSpace(asString(result["error"])) == "" {
		return json.Marshal(result)
	}
	category := coreerrors.Category(asString(result["error_category"]))
	if category == "" {
		category = defaultErrorCategory(exitCode)
		result["error_category"] = string(category)
	}
	if asString(result["error_code"]) == "" {
		result["error_code"] = string(category)
	}
	if _, exists := result["retryable"]; !exists {
		result["retryable"] = false
	}
	if asString(result["hint"]) == "" {
		result["hint"] = defaultHint(category)
	}
	return json.Marshal(result)
}

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput:
		return exitInvalidInput
	case coreerrors.CategoryNotFound:
		return exitNotFound
	case coreerrors.CategoryDataInvalid:
		return exitDataInvalid
	case coreerrors.CategoryIOFailure:
		return exitIOFailure
	case coreerrors.CategoryInternalFailure:
		return exitInternalFailure
	}
	return fallbackExit
}

func defaultErrorCategory(exitCode int) coreerrors.Category {
	switch exitCode {
	case exitInvalidInput:
		return coreerrors.CategoryInvalidInput
	case exitNotFound:
		return coreerrors.CategoryNotFound
	case exitDataInvalid:
		return coreerrors.CategoryDataInvalid
	case exitIOFailure:
		return coreerrors.CategoryIOFailure
	default:
		return coreerrors.CategoryInternalFailure
	}
}

func defaultHint(category coreerrors.Category) string {
	switch category {
	case coreerrors.CategoryInvalidInput:
		return "check command usage and flag values"
	case coreerrors.CategoryNotFound:
		return "check that the path points at an exported CARWatch log"
	case coreerrors.CategoryDataInvalid:
		return "inspect the reported log file or rerun with --error-handling warn"
	case coreerrors.CategoryIOFailure:
		return "check file permissions and free disk space"
	default:
		return "retry after checking local environment and logs"
	}
}

func asString(value any) string {
	text, _ := value.(string)
	return strings.TrimSpace(text)
}
