package logs

import (
	"strconv"
	"time"

	"go.uber.org/zap"
)

type SampleType string

const (
	SampleMorning SampleType = "morning"
	SampleEvening SampleType = "evening"
)

const (
	AwakeningSelfReport = "self-report"
	AwakeningAlarm      = "alarm"
)

// SamplingTime is the last scan of one sample in one session.
type SamplingTime struct {
	Session   string
	DayID     int
	Type      SampleType
	SalivaID  int
	Label     string
	Timestamp time.Time
}

// Clock is the HH:MM:SS time of the scan.
func (sample SamplingTime) Clock() string {
	return sample.Timestamp.Format(clockLayout)
}

// AwakeningTime is the awakening of one session. Timestamp is nil when the
// session has no usable awakening event.
type AwakeningTime struct {
	Session   string
	DayID     int
	Type      string
	Timestamp *time.Time
}

func (awakening AwakeningTime) Clock() string {
	if awakening.Timestamp == nil {
		return ""
	}
	return awakening.Timestamp.Format(clockLayout)
}

type SamplingOptions struct {
	IncludeEvening bool
	Mode           SplitMode
}

type AwakeningOptions struct {
	Mode SplitMode
}

// SamplingTimes lists one row per session and scanned sample id. Rescans
// replace earlier scans; rows keep the order of the first scan of each id.
func (participant *ParticipantLog) SamplingTimes(opts SamplingOptions) []SamplingTime {
	var out []SamplingTime
	for _, session := range participant.Sessions(opts.Mode) {
		var rows []SamplingTime
		position := map[int]int{}
		for _, record := range session.Records {
			if record.Action != ActionBarcodeScanned {
				continue
			}
			scan, err := decodePayload[BarcodeScan](record.Payload)
			if err != nil || scan.SalivaID == nil {
				participant.opts.Logger.Debug("skipping scan without saliva id",
					zap.String("source", record.Source), zap.Int("line", record.Line))
				continue
			}
			row := SamplingTime{
				Session:   session.Key,
				DayID:     session.Ordinal,
				Type:      participant.sampleType(*scan.SalivaID),
				SalivaID:  *scan.SalivaID,
				Label:     participant.SampleLabel(*scan.SalivaID),
				Timestamp: record.Timestamp,
			}
			if index, seen := position[row.SalivaID]; seen {
				rows[index] = row
				continue
			}
			position[row.SalivaID] = len(rows)
			rows = append(rows, row)
		}
		for _, row := range rows {
			if row.Type == SampleEvening && !opts.IncludeEvening {
				continue
			}
			out = append(out, row)
		}
	}
	return out
}

// AwakeningTimes lists one row per session from the first of
// spontaneous_awakening and alarm_stop. An alarm dismissed by a sample scan
// has no time.
func (participant *ParticipantLog) AwakeningTimes(opts AwakeningOptions) []AwakeningTime {
	sessions := participant.Sessions(opts.Mode)
	out := make([]AwakeningTime, 0, len(sessions))
	for _, session := range sessions {
		row := AwakeningTime{Session: session.Key, DayID: session.Ordinal}
		for _, record := range session.Records {
			if record.Action != ActionSpontaneousAwakening && record.Action != ActionAlarmStop {
				continue
			}
			timestamp := record.Timestamp
			if record.Action == ActionSpontaneousAwakening {
				row.Type = AwakeningSelfReport
				row.Timestamp = &timestamp
				break
			}
			row.Type = AwakeningAlarm
			stop, err := decodePayload[AlarmStop](record.Payload)
			if err != nil || stop.SalivaID == nil || *stop.SalivaID == 0 {
				row.Timestamp = &timestamp
			}
			break
		}
		out = append(out, row)
	}
	return out
}

func (participant *ParticipantLog) sampleType(salivaID int) SampleType {
	if salivaID >= participant.opts.NumSamples {
		return SampleEvening
	}
	return SampleMorning
}

// SampleLabel names a scanned sample: morning ids become <prefix><id+start>,
// evening ids <prefix>A, <prefix>A2, and so on.
func (participant *ParticipantLog) SampleLabel(salivaID int) string {
	return sampleLabel(salivaID, participant.opts.NumSamples, participant.opts.SamplePrefix, *participant.opts.SampleStartID)
}

func sampleLabel(salivaID int, numSamples int, prefix string, start int) string {
	if salivaID < numSamples {
		return prefix + strconv.Itoa(salivaID+start)
	}
	if extra := salivaID - numSamples; extra > 0 {
		return prefix + "A" + strconv.Itoa(extra+1)
	}
	return prefix + "A"
}
