package logs

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
	"github.com/mad-lab-fau/carwatch/core/jcs"
)

// ParticipantLog is the immutable, time-ordered log of one participant.
// Every accessor returns fresh slices and maps.
type ParticipantLog struct {
	source   string
	opts     Options
	records  []Record
	logDates []string

	subjectID        string
	subjectCondition string
	appMetadata      map[string]any
	phoneMetadata    map[string]any
}

func newParticipantLog(source string, records []Record, opts Options) (*ParticipantLog, error) {
	sorted := slices.Clone(records)
	sortRecords(sorted)
	participant := &ParticipantLog{
		source:  source,
		opts:    opts,
		records: sorted,
	}

	registration, err := decodePayload[SubjectRegistration](participant.firstPayload(ActionSubjectIDSet))
	if err == nil {
		participant.subjectID = strings.TrimSpace(string(registration.SubjectID))
		participant.subjectCondition = strings.TrimSpace(string(registration.SubjectCondition))
	}
	if err := enforce(opts.ErrorHandling, opts.Logger, source,
		checkMonotonic(sorted),
		checkRegistration(participant.subjectID),
	); err != nil {
		return nil, err
	}

	participant.appMetadata = participant.PayloadFor(ActionAppMetadata)
	participant.phoneMetadata = participant.PayloadFor(ActionPhoneMetadata)
	for _, record := range sorted {
		date := record.Date()
		if len(participant.logDates) == 0 || participant.logDates[len(participant.logDates)-1] != date {
			participant.logDates = append(participant.logDates, date)
		}
	}
	return participant, nil
}

// sortRecords orders records by time, keeping load order for equal instants.
func sortRecords(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// Source is the folder or archive the log was loaded from.
func (participant *ParticipantLog) Source() string {
	return participant.source
}

// SubjectID is empty when the registration event is missing.
func (participant *ParticipantLog) SubjectID() string {
	return participant.subjectID
}

func (participant *ParticipantLog) SubjectCondition() string {
	return participant.subjectCondition
}

func (participant *ParticipantLog) Location() *time.Location {
	return participant.opts.Location
}

func (participant *ParticipantLog) Len() int {
	return len(participant.records)
}

// Records returns a copy of all canonical records in chronological order.
func (participant *ParticipantLog) Records() []Record {
	return slices.Clone(participant.records)
}

// FilterOptions select records. Zero values select everything.
type FilterOptions struct {
	// Actions matches any of the listed actions.
	Actions []string
	// Date is a YYYY-MM-DD calendar date in the log's zone.
	Date string
}

// Filter returns records in chronological order. Asking only for actions
// outside the vocabulary yields no records.
func (participant *ParticipantLog) Filter(opts FilterOptions) ([]Record, error) {
	return filterRecords(participant.records, opts)
}

func filterRecords(records []Record, opts FilterOptions) ([]Record, error) {
	date := strings.TrimSpace(opts.Date)
	if date != "" {
		if _, err := time.Parse(dateLayout, date); err != nil {
			return nil, coreerrors.Newf(
				coreerrors.ErrUsage,
				"filter_date_invalid",
				"dates are formatted as YYYY-MM-DD",
				"invalid date %q: %w", opts.Date, err,
			)
		}
	}
	var actions map[string]struct{}
	if len(opts.Actions) > 0 {
		actions = make(map[string]struct{}, len(opts.Actions))
		known := false
		for _, action := range opts.Actions {
			actions[action] = struct{}{}
			known = known || IsKnownAction(action)
		}
		if !known {
			return []Record{}, nil
		}
	}
	out := []Record{}
	for _, record := range records {
		if date != "" && record.Date() != date {
			continue
		}
		if actions != nil {
			if _, ok := actions[record.Action]; !ok {
				continue
			}
		}
		out = append(out, record)
	}
	return out, nil
}

func (participant *ParticipantLog) firstPayload(action string) string {
	for _, record := range participant.records {
		if record.Action == action {
			return record.Payload
		}
	}
	return "{}"
}

// PayloadFor decodes the payload of the first occurrence of action. Numbers
// are json.Number. A missing action yields an empty map.
func (participant *ParticipantLog) PayloadFor(action string) map[string]any {
	decoder := json.NewDecoder(strings.NewReader(participant.firstPayload(action)))
	decoder.UseNumber()
	payload := map[string]any{}
	if err := decoder.Decode(&payload); err != nil || payload == nil {
		return map[string]any{}
	}
	return payload
}

func (participant *ParticipantLog) AppMetadata() map[string]any {
	return cloneMap(participant.appMetadata)
}

func (participant *ParticipantLog) PhoneMetadata() map[string]any {
	return cloneMap(participant.phoneMetadata)
}

// AndroidVersion is the SDK level, or 0 when unknown.
func (participant *ParticipantLog) AndroidVersion() int {
	switch value := participant.phoneMetadata["version_sdk_level"].(type) {
	case json.Number:
		if parsed, err := value.Int64(); err == nil {
			return int(parsed)
		}
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return 0
}

// AppVersion is the version name without its build suffix, or "n/a".
func (participant *ParticipantLog) AppVersion() string {
	for _, key := range []string{"version_name", "app_version_name"} {
		if value := metadataText(participant.appMetadata, key); value != "" {
			return strings.SplitN(value, "_", 2)[0]
		}
	}
	return notAvailable
}

func (participant *ParticipantLog) PhoneModel() string {
	return metadataTextOr(participant.phoneMetadata, "model")
}

func (participant *ParticipantLog) PhoneManufacturer() string {
	return metadataTextOr(participant.phoneMetadata, "manufacturer")
}

func (participant *ParticipantLog) PhoneBrand() string {
	return metadataTextOr(participant.phoneMetadata, "brand")
}

// LogDates are the distinct calendar dates with records, ascending.
func (participant *ParticipantLog) LogDates() []string {
	return slices.Clone(participant.logDates)
}

// StartDate is midnight of the first log date, or the zero time.
func (participant *ParticipantLog) StartDate() time.Time {
	if len(participant.logDates) == 0 {
		return time.Time{}
	}
	return participant.midnight(participant.logDates[0])
}

// EndDate is midnight of the last log date, or the zero time.
func (participant *ParticipantLog) EndDate() time.Time {
	if len(participant.logDates) == 0 {
		return time.Time{}
	}
	return participant.midnight(participant.logDates[len(participant.logDates)-1])
}

func (participant *ParticipantLog) midnight(date string) time.Time {
	parsed, err := time.ParseInLocation(dateLayout, date, participant.opts.Location)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func (participant *ParticipantLog) NumSamples() int {
	return participant.opts.NumSamples
}

// SamplingTimeDifferences are the minutes between consecutive morning samples.
func (participant *ParticipantLog) SamplingTimeDifferences() []int {
	if participant.opts.NumSamples < 2 {
		return []int{}
	}
	differences := make([]int, participant.opts.NumSamples-1)
	for index := range differences {
		differences[index] = defaultSamplingInterval
	}
	return differences
}

// Digest is a sha256 over the canonical encoding of every record. Two loads
// of the same content have the same digest.
func (participant *ParticipantLog) Digest() (string, error) {
	type digestRecord struct {
		Timestamp int64           `json:"timestamp"`
		Action    string          `json:"action"`
		Payload   json.RawMessage `json:"payload"`
	}
	entries := make([]digestRecord, 0, len(participant.records))
	for _, record := range participant.records {
		entries = append(entries, digestRecord{
			Timestamp: record.Timestamp.UnixMilli(),
			Action:    record.Action,
			Payload:   json.RawMessage(record.Payload),
		})
	}
	return jcs.DigestValue(entries)
}

// PayloadIssue counts records of one action whose payload lacks documented keys.
type PayloadIssue struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
	Detail string `json:"detail"`
}

// PayloadIssues is informational and never affected by error handling.
func (participant *ParticipantLog) PayloadIssues() ([]PayloadIssue, error) {
	checker, err := vocabularyChecker()
	if err != nil {
		return nil, fmt.Errorf("build payload checker: %w", err)
	}
	byAction := map[string]*PayloadIssue{}
	var order []string
	for _, record := range participant.records {
		checkErr := checker.Check(record.Action, []byte(record.Payload))
		if checkErr == nil {
			continue
		}
		issue, ok := byAction[record.Action]
		if !ok {
			issue = &PayloadIssue{Action: record.Action, Detail: checkErr.Error()}
			byAction[record.Action] = issue
			order = append(order, record.Action)
		}
		issue.Count++
	}
	issues := make([]PayloadIssue, 0, len(order))
	for _, action := range order {
		issues = append(issues, *byAction[action])
	}
	participant.opts.Logger.Debug("payload check finished", zap.String("source", participant.source), zap.Int("actions_with_issues", len(issues)))
	return issues, nil
}

const (
	notAvailable            = "n/a"
	defaultSamplingInterval = 15
)

func metadataText(metadata map[string]any, key string) string {
	switch value := metadata[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case bool:
		return strconv.FormatBool(value)
	}
	return ""
}

func metadataTextOr(metadata map[string]any, key string) string {
	if value := metadataText(metadata, key); value != "" {
		return value
	}
	return notAvailable
}

func cloneMap(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
