package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"
)

func RepoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to locate testutil source file")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("create parent directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func MustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	content, err := os.ReadFile(path) // #nosec G304 -- test helper for controlled paths.
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}

func FormatJSON(raw []byte) string {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return string(raw)
	}
	encoded, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return string(raw)
	}
	return fmt.Sprintf("%s\n", string(encoded))
}

// BerlinMillis converts a "2006-01-02 15:04:05" wall time in Europe/Berlin
// into epoch milliseconds.
func BerlinMillis(t *testing.T, wallTime string) int64 {
	t.Helper()
	location, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load Europe/Berlin: %v", err)
	}
	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", wallTime, location)
	if err != nil {
		t.Fatalf("parse %q: %v", wallTime, err)
	}
	return parsed.UnixMilli()
}

// Event is one log row expressed in Berlin wall time.
type Event struct {
	At      string
	Action  string
	Payload string
}

// LogRows renders events as <epoch_ms>;<action>;<payload> lines.
func LogRows(t *testing.T, events ...Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, event := range events {
		payload := event.Payload
		if payload == "" {
			payload = "{}"
		}
		fmt.Fprintf(&buf, "%d;%s;%s\n", BerlinMillis(t, event.At), event.Action, payload)
	}
	return buf.Bytes()
}

// WriteLogFolder writes one file per entry of files below dir.
func WriteLogFolder(t *testing.T, dir string, files map[string][]byte) string {
	t.Helper()
	for name, content := range files {
		WriteFile(t, filepath.Join(dir, filepath.FromSlash(name)), content)
	}
	return dir
}

// WriteZip writes an archive holding files, in name order.
func WriteZip(t *testing.T, path string, files map[string][]byte) string {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, name := range names {
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if strings.HasSuffix(name, "/") {
			continue
		}
		if _, err := entry.Write(files[name]); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	WriteFile(t, path, buf.Bytes())
	return path
}

// ParticipantFiles is a small two-night CARWatch recording for subject.
// Night 2019-12-07 has two morning scans and a self-reported awakening;
// night 2019-12-08 has an evening scan on 2019-12-07 and an alarm awakening.
func ParticipantFiles(t *testing.T, subject string, sdkLevel int) map[string][]byte {
	t.Helper()
	return map[string][]byte{
		"carwatch_" + subject + "_20191206.csv": LogRows(t,
			Event{At: "2019-12-06 20:01:00", Action: "app_metadata", Payload: `{"version_code":10,"version_name":"1.0.3_beta"}`},
			Event{At: "2019-12-06 20:01:01", Action: "phone_metadata", Payload: fmt.Sprintf(`{"brand":"samsung","manufacturer":"samsung","model":"SM-G960F","version_sdk_level":%d}`, sdkLevel)},
			Event{At: "2019-12-06 20:02:00", Action: "subject_id_set", Payload: fmt.Sprintf(`{"subject_id":%q,"subject_condition":"UNDEFINED"}`, subject)},
			Event{At: "2019-12-06 22:30:00", Action: "lights_out"},
		),
		"carwatch_" + subject + "_20191207.csv": LogRows(t,
			Event{At: "2019-12-07 07:31:16", Action: "spontaneous_awakening", Payload: `{"alarm_id":1}`},
			Event{At: "2019-12-07 07:32:00", Action: "barcode_scanned", Payload: `{"alarm_id":1,"saliva_id":0,"barcode_value":"0690000"}`},
			Event{At: "2019-12-07 07:47:05", Action: "barcode_scanned", Payload: `{"alarm_id":1,"saliva_id":1,"barcode_value":"0690001"}`},
			Event{At: "2019-12-07 22:53:01", Action: "barcode_scanned", Payload: `{"alarm_id":2,"saliva_id":5,"barcode_value":"0690005"}`},
		),
		"carwatch_" + subject + "_20191208.csv": LogRows(t,
			Event{At: "2019-12-08 06:30:00", Action: "alarm_ring", Payload: `{"alarm_id":3,"extra_saliva_id":0}`},
			Event{At: "2019-12-08 06:31:10", Action: "alarm_stop", Payload: `{"alarm_id":3,"source":"notification","saliva_id":null}`},
			Event{At: "2019-12-08 08:47:00", Action: "barcode_scanned", Payload: `{"alarm_id":3,"saliva_id":0,"barcode_value":"0690010"}`},
		),
	}
}
