package study

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
	"github.com/mad-lab-fau/carwatch/core/logs"
	"github.com/mad-lab-fau/carwatch/core/tabular"
)

// MetadataField names a per-participant metadata accessor.
type MetadataField string

const (
	FieldAndroidVersion    MetadataField = "android_version"
	FieldAppVersion        MetadataField = "app_version"
	FieldPhoneModel        MetadataField = "phone_model"
	FieldPhoneManufacturer MetadataField = "phone_manufacturer"
	FieldPhoneBrand        MetadataField = "phone_brand"
	FieldStartDate         MetadataField = "start_date"
	FieldEndDate           MetadataField = "end_date"
)

var metadataAccessors = map[MetadataField]func(*logs.ParticipantLog) string{
	FieldAndroidVersion:    func(p *logs.ParticipantLog) string { return strconv.Itoa(p.AndroidVersion()) },
	FieldAppVersion:        (*logs.ParticipantLog).AppVersion,
	FieldPhoneModel:        (*logs.ParticipantLog).PhoneModel,
	FieldPhoneManufacturer: (*logs.ParticipantLog).PhoneManufacturer,
	FieldPhoneBrand:        (*logs.ParticipantLog).PhoneBrand,
	FieldStartDate:         func(p *logs.ParticipantLog) string { return formatDate(p.LogDates(), 0) },
	FieldEndDate:           func(p *logs.ParticipantLog) string { return formatDate(p.LogDates(), -1) },
}

func formatDate(dates []string, index int) string {
	if len(dates) == 0 {
		return ""
	}
	if index < 0 {
		index = len(dates) + index
	}
	return dates[index]
}

// MetadataFields lists the supported fields in sorted order.
func MetadataFields() []MetadataField {
	fields := make([]MetadataField, 0, len(metadataAccessors))
	for field := range metadataAccessors {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	return fields
}

func ParseMetadataField(raw string) (MetadataField, error) {
	field := MetadataField(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := metadataAccessors[field]; !ok {
		names := make([]string, 0, len(metadataAccessors))
		for _, known := range MetadataFields() {
			names = append(names, string(known))
		}
		return "", coreerrors.Newf(
			coreerrors.ErrUsage,
			"metadata_field_unknown",
			"use one of "+strings.Join(names, ", "),
			"unknown metadata field %q", raw,
		)
	}
	return field, nil
}

// SubjectRecord is a canonical record tagged with its subject.
type SubjectRecord struct {
	Subject string
	logs.Record
}

// Records concatenates every participant's records in subject order.
func (study *StudyLog) Records() []SubjectRecord {
	var out []SubjectRecord
	for _, subject := range study.subjects {
		for _, record := range study.participants[subject].Records() {
			out = append(out, SubjectRecord{Subject: subject, Record: record})
		}
	}
	return out
}

// ExportTimes stacks every participant's export. Long exports gain a leading
// subject column; wide exports already carry one.
func (study *StudyLog) ExportTimes(opts logs.ExportOptions) (tabular.Table, error) {
	tables := make([]tabular.Table, 0, len(study.subjects))
	for _, subject := range study.subjects {
		table, err := study.participants[subject].Export(opts)
		if err != nil {
			return tabular.Table{}, err
		}
		if !opts.Wide {
			table = table.Prepend(logs.ColumnSubject, subject)
		}
		tables = append(tables, table)
	}
	return tabular.Concat(tables...), nil
}

// Metadata has one row per subject with the value of field.
func (study *StudyLog) Metadata(field MetadataField) (tabular.Table, error) {
	accessor, ok := metadataAccessors[field]
	if !ok {
		_, err := ParseMetadataField(string(field))
		return tabular.Table{}, err
	}
	table := tabular.New(logs.ColumnSubject, string(field))
	for _, subject := range study.subjects {
		if err := table.Append(subject, accessor(study.participants[subject])); err != nil {
			return tabular.Table{}, err
		}
	}
	return table, nil
}

// MetadataStats counts subjects per value of field, most frequent first.
func (study *StudyLog) MetadataStats(field MetadataField) (tabular.Table, error) {
	metadata, err := study.Metadata(field)
	if err != nil {
		return tabular.Table{}, err
	}
	counts := map[string]int{}
	for _, value := range metadata.Column(string(field)) {
		counts[value]++
	}
	values := make([]string, 0, len(counts))
	for value := range counts {
		values = append(values, value)
	}
	slices.SortFunc(values, func(a, b string) int {
		if byCount := cmp.Compare(counts[b], counts[a]); byCount != 0 {
			return byCount
		}
		return cmp.Compare(a, b)
	})
	stats := tabular.New(string(field), "count")
	for _, value := range values {
		if err := stats.Append(value, strconv.Itoa(counts[value])); err != nil {
			return tabular.Table{}, err
		}
	}
	return stats, nil
}

func (study *StudyLog) AndroidVersions() (tabular.Table, error) {
	return study.Metadata(FieldAndroidVersion)
}

func (study *StudyLog) AppVersions() (tabular.Table, error) {
	return study.Metadata(FieldAppVersion)
}

func (study *StudyLog) PhoneModels() (tabular.Table, error) {
	return study.Metadata(FieldPhoneModel)
}

func (study *StudyLog) PhoneManufacturers() (tabular.Table, error) {
	return study.Metadata(FieldPhoneManufacturer)
}
