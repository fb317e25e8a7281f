package logs

import (
	"slices"
	"strconv"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
	"github.com/mad-lab-fau/carwatch/core/tabular"
)

const (
	ColumnSubject       = "subject"
	ColumnDate          = "date"
	ColumnDayID         = "day_id"
	ColumnAwakeningTime = "awakening_time"
	ColumnAwakeningType = "awakening_type"
	samplingColumn      = "sampling_time_"
)

type ExportOptions struct {
	IncludeSampling  bool
	IncludeAwakening bool
	IncludeEvening   bool
	// Wide pivots to one row per participant with per-session columns
	// suffixed by the session ordinal.
	Wide bool
	Mode SplitMode
}

// DefaultExportOptions exports everything in long night format.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{IncludeSampling: true, IncludeAwakening: true, IncludeEvening: true}
}

// Export combines sampling and awakening times into one row per session.
func (participant *ParticipantLog) Export(opts ExportOptions) (tabular.Table, error) {
	if !opts.IncludeSampling && !opts.IncludeAwakening {
		return tabular.Table{}, coreerrors.Newf(
			coreerrors.ErrUsage,
			"export_nothing_selected",
			"include sampling times, awakening times, or both",
			"neither sampling nor awakening times selected",
		)
	}

	type sessionRow struct {
		dayID  int
		values map[string]string
	}
	rows := map[string]*sessionRow{}
	rowFor := func(session string, dayID int) *sessionRow {
		row, ok := rows[session]
		if !ok {
			row = &sessionRow{dayID: dayID, values: map[string]string{
				ColumnDate:  session,
				ColumnDayID: strconv.Itoa(dayID),
			}}
			rows[session] = row
		}
		return row
	}

	columns := []string{ColumnDate, ColumnDayID}
	if opts.IncludeSampling {
		samples := participant.SamplingTimes(SamplingOptions{IncludeEvening: opts.IncludeEvening, Mode: opts.Mode})
		var ids []int
		for _, sample := range samples {
			if !slices.Contains(ids, sample.SalivaID) {
				ids = append(ids, sample.SalivaID)
			}
			rowFor(sample.Session, sample.DayID).values[samplingColumn+sample.Label] = sample.Clock()
		}
		slices.Sort(ids)
		for _, id := range ids {
			columns = append(columns, samplingColumn+participant.SampleLabel(id))
		}
	}
	if opts.IncludeAwakening {
		for _, awakening := range participant.AwakeningTimes(AwakeningOptions{Mode: opts.Mode}) {
			row := rowFor(awakening.Session, awakening.DayID)
			row.values[ColumnAwakeningTime] = awakening.Clock()
			row.values[ColumnAwakeningType] = awakening.Type
		}
		columns = append(columns, ColumnAwakeningTime, ColumnAwakeningType)
	}

	ordered := make([]*sessionRow, 0, len(rows))
	for _, row := range rows {
		ordered = append(ordered, row)
	}
	slices.SortFunc(ordered, func(a, b *sessionRow) int {
		return a.dayID - b.dayID
	})

	long := tabular.New(columns...)
	for _, row := range ordered {
		long.AppendRecord(row.values)
	}
	if !opts.Wide {
		return long, nil
	}
	return widen(participant.subjectID, long), nil
}

// widen turns a long export into a single row keyed by subject.
func widen(subject string, long tabular.Table) tabular.Table {
	wideColumns := []string{ColumnSubject}
	values := map[string]string{ColumnSubject: subject}
	for _, record := range long.Records() {
		for _, column := range long.Columns {
			if column == ColumnDate || column == ColumnDayID {
				continue
			}
			name := column + "_" + record[ColumnDayID]
			wideColumns = append(wideColumns, name)
			values[name] = record[column]
		}
	}
	wide := tabular.New(wideColumns...)
	wide.AppendRecord(values)
	return wide
}
