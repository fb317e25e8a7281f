package logs

import (
	"slices"
	"strings"
	"time"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
)

// SplitMode selects how the record stream is cut into sessions.
type SplitMode int

const (
	// SplitNight files evening records under the following morning.
	SplitNight SplitMode = iota
	// SplitDay keys every record by its own calendar date.
	SplitDay
)

func (mode SplitMode) String() string {
	if mode == SplitDay {
		return "day"
	}
	return "night"
}

// ParseSplitMode accepts night or day. Empty means night.
func ParseSplitMode(raw string) (SplitMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "night":
		return SplitNight, nil
	case "day":
		return SplitDay, nil
	default:
		return SplitNight, coreerrors.Newf(
			coreerrors.ErrUsage,
			"split_mode_unknown",
			"use night or day",
			"unknown split mode %q", raw,
		)
	}
}

// Session is one sampling period. Ordinal is its 1-based position among all
// sessions of the same split mode.
type Session struct {
	Key     string
	Ordinal int
	Records []Record
}

// SessionRecord is a record tagged with the key of its session.
type SessionRecord struct {
	Session string
	Record
}

const eveningBoundary = 18 * time.Hour

// Sessions partitions the log, ordered by key.
func (participant *ParticipantLog) Sessions(mode SplitMode) []Session {
	return splitSessions(participant.records, mode)
}

// SessionMap returns the records of every session by key.
func (participant *ParticipantLog) SessionMap(mode SplitMode) map[string][]Record {
	sessions := participant.Sessions(mode)
	out := make(map[string][]Record, len(sessions))
	for _, session := range sessions {
		out[session.Key] = session.Records
	}
	return out
}

// SessionRecords concatenates all sessions in key order.
func (participant *ParticipantLog) SessionRecords(mode SplitMode) []SessionRecord {
	var out []SessionRecord
	for _, session := range participant.Sessions(mode) {
		for _, record := range session.Records {
			out = append(out, SessionRecord{Session: session.Key, Record: record})
		}
	}
	return out
}

func splitSessions(records []Record, mode SplitMode) []Session {
	if len(records) == 0 {
		return nil
	}
	var partitions [][]Record
	if mode == SplitDay {
		partitions = cutWhere(records, func(previous, current Record) bool {
			return previous.Date() != current.Date()
		})
	} else {
		partitions = mergeNights(cutWhere(records, func(previous, current Record) bool {
			return previous.Date() != current.Date() || beforeEvening(previous) != beforeEvening(current)
		}))
	}

	byKey := map[string][]Record{}
	var keys []string
	for _, partition := range partitions {
		key := partitionKey(partition, mode)
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], partition...)
	}
	slices.Sort(keys)

	sessions := make([]Session, 0, len(keys))
	for index, key := range keys {
		joined := byKey[key]
		sortRecords(joined)
		sessions = append(sessions, Session{Key: key, Ordinal: index + 1, Records: joined})
	}
	return sessions
}

// cutWhere splits records between every consecutive pair for which boundary
// holds. Partitions share no backing array with records.
func cutWhere(records []Record, boundary func(previous, current Record) bool) [][]Record {
	var partitions [][]Record
	start := 0
	for index := 1; index < len(records); index++ {
		if boundary(records[index-1], records[index]) {
			partitions = append(partitions, slices.Clone(records[start:index]))
			start = index
		}
	}
	return append(partitions, slices.Clone(records[start:]))
}

// mergeNights joins an evening partition with the next partition when the
// next one starts the following morning. A merged partition is not merged
// again.
func mergeNights(partitions [][]Record) [][]Record {
	merged := make([][]Record, 0, len(partitions))
	for index := 0; index < len(partitions); index++ {
		current := partitions[index]
		if index+1 < len(partitions) {
			next := partitions[index+1]
			first, nextFirst := current[0], next[0]
			if nextDay(first.Date()) == nextFirst.Date() &&
				clockOf(first) > eveningBoundary && clockOf(nextFirst) < eveningBoundary {
				merged = append(merged, append(current, next...))
				index++
				continue
			}
		}
		merged = append(merged, current)
	}
	return merged
}

func partitionKey(partition []Record, mode SplitMode) string {
	if mode == SplitDay {
		return partition[0].Date()
	}
	last := partition[len(partition)-1]
	if clockOf(last) > eveningBoundary {
		return nextDay(last.Date())
	}
	return last.Date()
}

func beforeEvening(record Record) bool {
	return clockOf(record) <= eveningBoundary
}

// clockOf is the wall-clock time of day of the record in its zone.
func clockOf(record Record) time.Duration {
	hour, minute, second := record.Timestamp.Clock()
	return time.Duration(hour)*time.Hour +
		time.Duration(minute)*time.Minute +
		time.Duration(second)*time.Second +
		time.Duration(record.Timestamp.Nanosecond())
}

func nextDay(date string) string {
	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return parsed.AddDate(0, 0, 1).Format(dateLayout)
}
