package logs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
	"github.com/mad-lab-fau/carwatch/core/jcs"
)

// Record is one canonical log event.
type Record struct {
	Timestamp time.Time
	Action    string
	// Payload is the RFC 8785 canonical JSON object of the event extras.
	Payload string
	// Source and Line locate the row the record was parsed from.
	Source string
	Line   int
}

// Date returns the calendar date of the record in its own zone.
func (record Record) Date() string {
	return record.Timestamp.Format(dateLayout)
}

const (
	dateLayout     = "2006-01-02"
	clockLayout    = "15:04:05"
	payloadLayout  = "2006-01-02 15:04:05-07:00"
	payloadLayoutF = "2006-01-02 15:04:05.000000-07:00"
)

var payloadTimestampKeys = []string{"timestamp", "timestamp_hidden"}

const maxLineBytes = 4 * 1024 * 1024

// parseLogFile reads <epoch_ms>;<action>;<payload> rows. There is no header.
func parseLogFile(source string, content []byte, location *time.Location) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if raw == "" {
			continue
		}
		record, err := parseRow(raw, location)
		if err != nil {
			return nil, malformedRow(source, line, err)
		}
		record.Source = source
		record.Line = line
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, malformedRow(source, line+1, err)
	}
	return records, nil
}

func parseRow(raw string, location *time.Location) (Record, error) {
	fields := strings.SplitN(raw, ";", 3)
	if len(fields) < 3 {
		return Record{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	millis, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("parse timestamp: %w", err)
	}
	action := strings.TrimSpace(fields[1])
	if action == "" {
		return Record{}, fmt.Errorf("empty action")
	}
	payload, err := normalizePayload(unquoteField(strings.TrimSpace(fields[2])), location)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Timestamp: time.UnixMilli(millis).In(location),
		Action:    action,
		Payload:   payload,
	}, nil
}

// unquoteField strips CSV quoting from a payload column written as "{""k"":1}".
func unquoteField(field string) string {
	if len(field) >= 2 && strings.HasPrefix(field, `"`) && strings.HasSuffix(field, `"`) {
		return strings.ReplaceAll(field[1:len(field)-1], `""`, `"`)
	}
	return field
}

// normalizePayload rewrites epoch-ms payload timestamps into location, fixes
// the legacy extra_saliva_id key, and returns the canonical JSON object.
func normalizePayload(raw string, location *time.Location) (string, error) {
	if raw == "" {
		return "{}", nil
	}
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return "", fmt.Errorf("payload is not a json object: %w", err)
	}
	if payload == nil {
		return "", fmt.Errorf("payload is not a json object")
	}
	if decoder.More() {
		return "", fmt.Errorf("trailing data after payload")
	}

	for _, key := range payloadTimestampKeys {
		number, ok := payload[key].(json.Number)
		if !ok {
			continue
		}
		millis, err := number.Int64()
		if err != nil {
			continue
		}
		payload[key] = formatPayloadTime(time.UnixMilli(millis).In(location))
	}
	if value, ok := payload["extra_saliva_id"]; ok {
		payload["saliva_id"] = value
		delete(payload, "extra_saliva_id")
	}

	canonical, err := jcs.CanonicalizeValue(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	return string(canonical), nil
}

func formatPayloadTime(ts time.Time) string {
	if ts.Nanosecond() == 0 {
		return ts.Format(payloadLayout)
	}
	return ts.Format(payloadLayoutF)
}

func malformedRow(source string, line int, cause error) error {
	return coreerrors.Newf(
		coreerrors.ErrLogDataParse,
		"log_row_malformed",
		"rows must be <epoch_ms>;<action>;<json payload>",
		"%s line %d: %w", source, line, cause,
	)
}
