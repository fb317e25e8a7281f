// Package protocol describes a planned CAR study: how many subjects, days,
// and samples it has and how they are named on labels.
package protocol

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
)

// MaxSubjects is the largest subject count an EAN-8 barcode can encode.
const MaxSubjects = 999

const defaultSubjectColumn = "subject"

type Study struct {
	StudyName  string   `yaml:"study_name"`
	NumDays    int      `yaml:"num_days"`
	NumSamples int      `yaml:"num_samples"`
	SubjectIDs []string `yaml:"subject_ids"`
	// SubjectPath names a CSV file with one row per subject. It is resolved
	// relative to the definition file and fills SubjectIDs on Load.
	SubjectPath      string `yaml:"subject_path"`
	SubjectColumn    string `yaml:"subject_column"`
	NumSubjects      int    `yaml:"num_subjects"`
	SubjectPrefix    string `yaml:"subject_prefix"`
	HasEveningSample bool   `yaml:"has_evening_sample"`
	SamplePrefix     string `yaml:"sample_prefix"`
	SampleStartID    int    `yaml:"sample_start_id"`
}

// Load reads and validates a YAML study definition.
func Load(path string) (Study, error) {
	// #nosec G304 -- study definition path is explicit local user input.
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Study{}, coreerrors.Newf(
				coreerrors.ErrNotFound,
				"study_definition_not_found",
				"check the study definition path",
				"study definition %s does not exist", path,
			)
		}
		return Study{}, coreerrors.Wrap(fmt.Errorf("read study definition: %w", err),
			coreerrors.CategoryIOFailure, "study_definition_unreadable", "check file permissions", false)
	}
	var study Study
	if err := yaml.Unmarshal(content, &study); err != nil {
		return Study{}, invalid(fmt.Sprintf("parse study definition: %v", err))
	}
	if study.SubjectPath != "" {
		subjectPath := study.SubjectPath
		if !filepath.IsAbs(subjectPath) {
			subjectPath = filepath.Join(filepath.Dir(path), subjectPath)
		}
		ids, err := LoadSubjectIDs(subjectPath, study.SubjectColumn)
		if err != nil {
			return Study{}, err
		}
		study.SubjectIDs = ids
	}
	if err := study.Validate(); err != nil {
		return Study{}, err
	}
	return study, nil
}

// LoadSubjectIDs reads the subject column of a comma separated file with a
// header row. Empty column means "subject".
func LoadSubjectIDs(path string, column string) ([]string, error) {
	extension := strings.ToLower(filepath.Ext(path))
	if extension != ".csv" && extension != ".txt" {
		return nil, coreerrors.Newf(
			coreerrors.ErrFileExtension,
			"subject_list_extension",
			"export the subject list as comma separated text",
			"subject list %s must be a .csv or .txt file", path,
		)
	}
	if strings.TrimSpace(column) == "" {
		column = defaultSubjectColumn
	}
	// #nosec G304 -- subject list path comes from the study definition.
	file, err := os.Open(path)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("open subject list: %w", err),
			coreerrors.CategoryIOFailure, "subject_list_unreadable", "check the subject_path of the study definition", false)
	}
	defer func() {
		_ = file.Close()
	}()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, invalid(fmt.Sprintf("subject list %s has no header row", path))
	}
	index := -1
	for position, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == column {
			index = position
			break
		}
	}
	if index < 0 {
		return nil, invalid(fmt.Sprintf("subject list %s has no column %q", path, column))
	}
	var ids []string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalid(fmt.Sprintf("read subject list %s: %v", path, err))
		}
		if index < len(row) && strings.TrimSpace(row[index]) != "" {
			ids = append(ids, strings.TrimSpace(row[index]))
		}
	}
	return ids, nil
}

func (study Study) Validate() error {
	switch {
	case strings.TrimSpace(study.StudyName) == "":
		return invalid("study_name is required")
	case study.NumDays <= 0:
		return invalid("num_days must be > 0")
	case study.NumSamples <= 0:
		return invalid("num_samples must be > 0")
	case study.SampleStartID < 0:
		return invalid("sample_start_id must be >= 0")
	case len(study.SubjectIDs) == 0 && study.NumSubjects <= 0:
		return invalid("either subject_ids, subject_path, or num_subjects is required")
	}
	if count := study.SubjectCount(); count > MaxSubjects {
		return invalid(fmt.Sprintf("studies with more than %d subjects are not supported, got %d", MaxSubjects, count))
	}
	return nil
}

// SubjectCount prefers explicit IDs over NumSubjects.
func (study Study) SubjectCount() int {
	if len(study.SubjectIDs) > 0 {
		return len(study.SubjectIDs)
	}
	return study.NumSubjects
}

// SubjectNames returns explicit IDs unchanged. Otherwise subjects are
// numbered from zero, padded to the width of the subject count and
// prefixed with SubjectPrefix.
func (study Study) SubjectNames() []string {
	if len(study.SubjectIDs) > 0 {
		return append([]string(nil), study.SubjectIDs...)
	}
	width := len(strconv.Itoa(study.NumSubjects))
	names := make([]string, 0, study.NumSubjects)
	for index := 0; index < study.NumSubjects; index++ {
		names = append(names, fmt.Sprintf("%s%0*d", study.SubjectPrefix, width, index))
	}
	return names
}

// DayIndices are 1-based.
func (study Study) DayIndices() []int {
	return indices(1, study.NumDays)
}

// SampleIndices are 0-based and include the evening sample.
func (study Study) SampleIndices() []int {
	return indices(0, study.NumSamples)
}

// SampleLabels names every sample of a day. With an evening sample the
// last one is labelled A.
func (study Study) SampleLabels() []string {
	prefix := study.SamplePrefix
	if prefix == "" {
		prefix = "S"
	}
	labels := make([]string, 0, study.NumSamples)
	for _, index := range study.SampleIndices() {
		if study.HasEveningSample && index == study.NumSamples-1 {
			labels = append(labels, prefix+"A")
			continue
		}
		labels = append(labels, prefix+strconv.Itoa(index+study.SampleStartID))
	}
	return labels
}

func indices(start int, count int) []int {
	out := make([]int, 0, max(count, 0))
	for offset := 0; offset < count; offset++ {
		out = append(out, start+offset)
	}
	return out
}

func invalid(message string) error {
	return coreerrors.Newf(
		coreerrors.ErrUsage,
		"study_definition_invalid",
		"fix the study definition and retry",
		"%s", message,
	)
}
