package logs

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/mad-lab-fau/carwatch/core/schema/validate"
)

const (
	ActionAppMetadata          = "app_metadata"
	ActionPhoneMetadata        = "phone_metadata"
	ActionSubjectIDSet         = "subject_id_set"
	ActionAlarmStop            = "alarm_stop"
	ActionBarcodeScanned       = "barcode_scanned"
	ActionSpontaneousAwakening = "spontaneous_awakening"
)

// actionKeys is the vocabulary of app actions and the payload keys each one
// documents. The keys are informational; they are never enforced on load.
var actionKeys = map[string][]string{
	ActionAppMetadata:           {"app_version_code", "app_version_name"},
	ActionPhoneMetadata:         {"brand", "manufacturer", "model", "version_sdk_level", "version_security_patch", "version_release"},
	ActionSubjectIDSet:          {"subject_id", "subject_condition"},
	"alarm_set":                 {"alarm_id", "timestamp", "is_repeating", "is_hidden", "hidden_timestamp"},
	"timer_set":                 {"alarm_id", "timestamp"},
	"alarm_cancel":              {"alarm_id"},
	"alarm_ring":                {"alarm_id", "saliva_id"},
	"alarm_snooze":              {"alarm_id", "snooze_duration", "source"},
	ActionAlarmStop:             {"alarm_id", "source", "saliva_id"},
	"alarm_killall":             {},
	"evening_salivette":         {"alarm_id"},
	"barcode_scan_init":         {},
	ActionBarcodeScanned:        {"alarm_id", "saliva_id", "barcode_value"},
	"invalid_barcode_scanned":   {"barcode_value"},
	"duplicate_barcode_scanned": {"barcode_value", "other_barcodes"},
	ActionSpontaneousAwakening:  {"alarm_id"},
	"lights_out":                {},
	"day_finished":              {"day_counter"},
	"service_started":           {},
	"service_stopped":           {},
	"screen_off":                {},
	"screen_on":                 {},
	"user_present":              {},
	"phone_boot_init":           {},
	"phone_boot_complete":       {},
}

// Actions returns the known action names in sorted order.
func Actions() []string {
	names := make([]string, 0, len(actionKeys))
	for name := range actionKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func IsKnownAction(action string) bool {
	_, ok := actionKeys[action]
	return ok
}

// ExpectedKeys returns the documented payload keys of action.
func ExpectedKeys(action string) ([]string, bool) {
	keys, ok := actionKeys[action]
	if !ok {
		return nil, false
	}
	return slices.Clone(keys), true
}

var (
	payloadCheckerOnce sync.Once
	payloadChecker     *validate.PayloadChecker
	payloadCheckerErr  error
)

func vocabularyChecker() (*validate.PayloadChecker, error) {
	payloadCheckerOnce.Do(func() {
		payloadChecker, payloadCheckerErr = validate.NewPayloadChecker(actionKeys)
	})
	return payloadChecker, payloadCheckerErr
}

// SubjectRegistration is the payload of subject_id_set.
type SubjectRegistration struct {
	SubjectID        Text `json:"subject_id"`
	SubjectCondition Text `json:"subject_condition"`
}

// Text decodes a JSON string, or the literal text of a JSON number, bool or
// null (null yields "").
type Text string

func (text *Text) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*text = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*text = Text(value)
		return nil
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return fmt.Errorf("expected scalar, got %s", trimmed)
	}
	*text = Text(trimmed)
	return nil
}

// BarcodeScan holds the part of a barcode_scanned payload the timeline
// reads. Other keys are not decoded.
type BarcodeScan struct {
	SalivaID *int `json:"saliva_id"`
}

// AlarmStop holds the part of an alarm_stop payload the timeline reads.
// SalivaID is set when the alarm was dismissed by scanning a sample.
type AlarmStop struct {
	SalivaID *int `json:"saliva_id"`
}

func decodePayload[T any](payload string) (T, error) {
	var value T
	decoder := json.NewDecoder(strings.NewReader(payload))
	if err := decoder.Decode(&value); err != nil {
		return value, fmt.Errorf("decode payload: %w", err)
	}
	return value, nil
}
