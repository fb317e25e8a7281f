package logs

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
	"github.com/mad-lab-fau/carwatch/internal/testutil"
)

func TestFilterByAction(t *testing.T) {
	participant := loadFixture(t)

	scans, err := participant.Filter(FilterOptions{Actions: []string{ActionBarcodeScanned}})
	require.NoError(t, err)
	assert.Len(t, scans, 4)

	mixed, err := participant.Filter(FilterOptions{Actions: []string{ActionAlarmStop, ActionSpontaneousAwakening}})
	require.NoError(t, err)
	require.Len(t, mixed, 2)
	assert.Equal(t, ActionSpontaneousAwakening, mixed[0].Action)

	unknown, err := participant.Filter(FilterOptions{Actions: []string{"dance"}})
	require.NoError(t, err)
	assert.Empty(t, unknown)
	assert.NotNil(t, unknown)
}

func TestFilterByDate(t *testing.T) {
	participant := loadFixture(t)

	day, err := participant.Filter(FilterOptions{Date: "2019-12-07"})
	require.NoError(t, err)
	require.Len(t, day, 4)
	for _, record := range day {
		assert.Equal(t, "2019-12-07", record.Date())
	}

	scans, err := participant.Filter(FilterOptions{Date: "2019-12-07", Actions: []string{ActionBarcodeScanned}})
	require.NoError(t, err)
	assert.Len(t, scans, 3)

	none, err := participant.Filter(FilterOptions{Date: "2020-01-01"})
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := participant.Filter(FilterOptions{})
	require.NoError(t, err)
	assert.Len(t, all, participant.Len())

	_, err = participant.Filter(FilterOptions{Date: "07.12.2019"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerrors.ErrUsage))
}

func TestFilterByDatePartitionsRecords(t *testing.T) {
	location := time.FixedZone("CET", 3600)
	base := time.Date(2019, 12, 1, 0, 0, 0, 0, location)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("date filters cover every record exactly once", prop.ForAll(
		func(offsets []int64) bool {
			records := syntheticRecords(base, offsets)
			total := 0
			for _, date := range distinctDates(records) {
				filtered, err := filterRecords(records, FilterOptions{Date: date})
				if err != nil {
					return false
				}
				for _, record := range filtered {
					if record.Date() != date {
						return false
					}
				}
				total += len(filtered)
			}
			return total == len(records)
		},
		gen.SliceOf(gen.Int64Range(0, 10*24*3600)),
	))

	properties.TestingRun(t)
}

func TestPayloadForFirstOccurrence(t *testing.T) {
	participant := loadFixture(t)

	scan := participant.PayloadFor(ActionBarcodeScanned)
	assert.Equal(t, json.Number("0"), scan["saliva_id"])
	assert.Equal(t, "0690000", scan["barcode_value"])

	again := participant.PayloadFor(ActionBarcodeScanned)
	assert.Equal(t, scan, again)
	scan["saliva_id"] = "changed"
	assert.Equal(t, json.Number("0"), participant.PayloadFor(ActionBarcodeScanned)["saliva_id"])

	assert.Empty(t, participant.PayloadFor("timer_set"))
	assert.NotNil(t, participant.PayloadFor("timer_set"))
}

func TestLegacySalivaKeyIsVisible(t *testing.T) {
	participant := loadFixture(t)
	ring := participant.PayloadFor("alarm_ring")
	assert.Equal(t, json.Number("0"), ring["saliva_id"])
	_, legacy := ring["extra_saliva_id"]
	assert.False(t, legacy)
}

func TestMetadataAccessors(t *testing.T) {
	participant := loadFixture(t)
	assert.Equal(t, 29, participant.AndroidVersion())
	assert.Equal(t, "1.0.3", participant.AppVersion())
	assert.Equal(t, "SM-G960F", participant.PhoneModel())
	assert.Equal(t, "samsung", participant.PhoneManufacturer())
	assert.Equal(t, "samsung", participant.PhoneBrand())
	assert.Equal(t, "2019-12-06", participant.StartDate().Format(dateLayout))
	assert.Equal(t, "2019-12-08", participant.EndDate().Format(dateLayout))
	assert.Equal(t, 5, participant.NumSamples())
	assert.Equal(t, []int{15, 15, 15, 15}, participant.SamplingTimeDifferences())

	metadata := participant.PhoneMetadata()
	metadata["model"] = "changed"
	assert.Equal(t, "SM-G960F", participant.PhoneModel())
}

func TestMetadataFallbacks(t *testing.T) {
	dir := testutil.WriteLogFolder(t, t.TempDir(), map[string][]byte{
		"day.csv": testutil.LogRows(t,
			testutil.Event{At: "2019-12-07 07:31:16", Action: "subject_id_set", Payload: `{"subject_id":"AB12C"}`},
		),
	})
	participant, err := FromFolder(dir, Options{NumSamples: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, participant.AndroidVersion())
	assert.Equal(t, "n/a", participant.AppVersion())
	assert.Equal(t, "n/a", participant.PhoneModel())
	assert.Equal(t, "n/a", participant.PhoneManufacturer())
	assert.Empty(t, participant.AppMetadata())
	assert.Equal(t, []int{15, 15}, participant.SamplingTimeDifferences())
}

func TestAppVersionFromLegacyKey(t *testing.T) {
	dir := testutil.WriteLogFolder(t, t.TempDir(), map[string][]byte{
		"day.csv": testutil.LogRows(t,
			testutil.Event{At: "2019-12-07 07:31:15", Action: "app_metadata", Payload: `{"app_version_code":7,"app_version_name":"0.9.1"}`},
			testutil.Event{At: "2019-12-07 07:31:16", Action: "phone_metadata", Payload: `{"version_sdk_level":"28"}`},
		),
	})
	participant, err := FromFolder(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, "0.9.1", participant.AppVersion())
	assert.Equal(t, 28, participant.AndroidVersion())
}

func TestEmptyStoreDates(t *testing.T) {
	participant, err := newParticipantLog("memory", nil, mustDefaults(t))
	require.NoError(t, err)
	assert.True(t, participant.StartDate().IsZero())
	assert.True(t, participant.EndDate().IsZero())
	assert.Empty(t, participant.LogDates())
}

func TestRecordsAreCopies(t *testing.T) {
	participant := loadFixture(t)
	records := participant.Records()
	records[0].Action = "tampered"
	assert.NotEqual(t, "tampered", participant.Records()[0].Action)
}

func TestPayloadIssues(t *testing.T) {
	dir := testutil.WriteLogFolder(t, t.TempDir(), map[string][]byte{
		"day.csv": testutil.LogRows(t,
			testutil.Event{At: "2019-12-07 07:31:15", Action: "subject_id_set", Payload: `{"subject_id":"AB12C","subject_condition":"A"}`},
			testutil.Event{At: "2019-12-07 07:31:16", Action: "barcode_scanned", Payload: `{"saliva_id":0}`},
			testutil.Event{At: "2019-12-07 07:46:16", Action: "barcode_scanned", Payload: `{"saliva_id":1}`},
			testutil.Event{At: "2019-12-07 07:46:17", Action: "custom_action", Payload: `{}`},
		),
	})
	participant, err := FromFolder(dir, Options{ErrorHandling: ErrorHandlingRaise})
	require.NoError(t, err)
	issues, err := participant.PayloadIssues()
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, ActionBarcodeScanned, issues[0].Action)
	assert.Equal(t, 2, issues[0].Count)
}

func TestVocabulary(t *testing.T) {
	actions := Actions()
	assert.Len(t, actions, 25)
	assert.True(t, IsKnownAction("lights_out"))
	assert.False(t, IsKnownAction("dance"))
	keys, ok := ExpectedKeys(ActionAlarmStop)
	require.True(t, ok)
	assert.Equal(t, []string{"alarm_id", "source", "saliva_id"}, keys)
	keys[0] = "changed"
	again, _ := ExpectedKeys(ActionAlarmStop)
	assert.Equal(t, "alarm_id", again[0])
}

func mustDefaults(t *testing.T) Options {
	t.Helper()
	opts, err := Options{}.withDefaults()
	require.NoError(t, err)
	return opts
}

func syntheticRecords(base time.Time, offsets []int64) []Record {
	records := make([]Record, 0, len(offsets))
	for index, offset := range offsets {
		records = append(records, Record{
			Timestamp: base.Add(time.Duration(offset) * time.Second),
			Action:    "screen_on",
			Payload:   "{}",
			Source:    "synthetic.csv",
			Line:      index + 1,
		})
	}
	sortRecords(records)
	return records
}

func distinctDates(records []Record) []string {
	var dates []string
	seen := map[string]bool{}
	for _, record := range records {
		if !seen[record.Date()] {
			seen[record.Date()] = true
			dates = append(dates, record.Date())
		}
	}
	return dates
}
