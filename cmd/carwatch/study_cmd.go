package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/mad-lab-fau/carwatch/core/protocol"
	"github.com/mad-lab-fau/carwatch/core/study"
	"github.com/mad-lab-fau/carwatch/core/tabular"
)

type studyMetadataOutput struct {
	OK      bool       `json:"ok"`
	Field   string     `json:"field,omitempty"`
	Stats   bool       `json:"stats,omitempty"`
	Columns []string   `json:"columns,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
	Path    string     `json:"path,omitempty"`
	errorFields
}

type studyCheckOutput struct {
	OK           bool     `json:"ok"`
	StudyName    string   `json:"study_name,omitempty"`
	NumSubjects  int      `json:"num_subjects,omitempty"`
	NumDays      int      `json:"num_days,omitempty"`
	SubjectNames []string `json:"subject_names,omitempty"`
	DayIndices   []int    `json:"day_indices,omitempty"`
	SampleLabels []string `json:"sample_labels,omitempty"`
	errorFields
}

func runStudy(arguments []string) int {
	if len(arguments) == 0 {
		printStudyUsage()
		return exitInvalidInput
	}
	switch arguments[0] {
	case "export":
		return runStudyExport(arguments[1:])
	case "metadata":
		return runStudyMetadata(arguments[1:])
	case "check":
		return runStudyCheck(arguments[1:])
	case "--explain":
		return writeExplain("Aggregate every participant below a study folder, or validate a study definition.")
	default:
		printStudyUsage()
		return exitInvalidInput
	}
}

type studyFlags struct {
	duplicates  string
	concurrency int
}

func registerStudyFlags(flagSet *flag.FlagSet) *studyFlags {
	flags := &studyFlags{}
	flagSet.StringVar(&flags.duplicates, "duplicates", "", "duplicate subject policy: raise|keep-first|keep-last")
	flagSet.IntVar(&flags.concurrency, "concurrency", 0, "participants loaded in parallel (default CPU count)")
	return flags
}

func loadStudy(root string, flags *studyFlags, settings resolved, explicit map[string]bool) (*study.StudyLog, error) {
	duplicatesName := settings.config.Study.Duplicates
	if explicit["duplicates"] {
		duplicatesName = flags.duplicates
	}
	duplicates, err := study.ParseDuplicatePolicy(duplicatesName)
	if err != nil {
		return nil, err
	}
	concurrency := settings.config.Study.Concurrency
	if explicit["concurrency"] {
		concurrency = flags.concurrency
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return study.FromFolder(ctx, root, study.Options{
		Logs:        settings.logs,
		Duplicates:  duplicates,
		Concurrency: concurrency,
	})
}

func runStudyExport(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Load every participant below a study folder and export all sampling and awakening times into one table.")
	}
	flagSet := newFlagSet("study-export")
	common := registerCommonFlags(flagSet)
	export := registerExportFlags(flagSet)
	flags := registerStudyFlags(flagSet)
	if err := flagSet.Parse(splitFlags(arguments, valueFlags)); err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	if common.help {
		printStudyUsage()
		return exitOK
	}
	root, err := singlePath(flagSet.Args(), "root")
	if err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	if strings.TrimSpace(export.out) == "" {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: usageFields("missing required --out <file>")}, exitInvalidInput)
	}
	settings, err := common.resolve(flagSet, true)
	if err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInvalidInput))
	}
	defer func() { _ = settings.logger.Sync() }()
	opts, format, err := export.resolve(flagSet, settings.config.Export)
	if err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInvalidInput))
	}

	loaded, err := loadStudy(root, flags, settings, explicitFlags(flagSet))
	if err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	table, err := loaded.ExportTimes(opts)
	if err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return persistTable(common.jsonOutput, export.out, format, table, loaded.Len())
}

func runStudyMetadata(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Tabulate one device or app metadata field per subject, or count subjects per value with --stats.")
	}
	flagSet := newFlagSet("study-metadata")
	common := registerCommonFlags(flagSet)
	flags := registerStudyFlags(flagSet)
	var fieldName string
	var outPath string
	var formatName string
	var statsOnly bool
	flagSet.StringVar(&fieldName, "field", "", "metadata field")
	flagSet.StringVar(&outPath, "out", "", "optional output table path")
	flagSet.StringVar(&formatName, "format", "", "output format: csv|json|xlsx")
	flagSet.BoolVar(&statsOnly, "stats", false, "count subjects per value")
	if err := flagSet.Parse(splitFlags(arguments, valueFlags)); err != nil {
		return writeStudyMetadataOutput(common.jsonOutput, studyMetadataOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	if common.help {
		printStudyUsage()
		return exitOK
	}
	root, err := singlePath(flagSet.Args(), "root")
	if err != nil {
		return writeStudyMetadataOutput(common.jsonOutput, studyMetadataOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	field, err := study.ParseMetadataField(fieldName)
	if err != nil {
		return writeStudyMetadataOutput(common.jsonOutput, studyMetadataOutput{errorFields: fieldsForError(err)}, exitInvalidInput)
	}
	settings, err := common.resolve(flagSet, true)
	if err != nil {
		return writeStudyMetadataOutput(common.jsonOutput, studyMetadataOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInvalidInput))
	}
	defer func() { _ = settings.logger.Sync() }()

	loaded, err := loadStudy(root, flags, settings, explicitFlags(flagSet))
	if err != nil {
		return writeStudyMetadataOutput(common.jsonOutput, studyMetadataOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	var table tabular.Table
	if statsOnly {
		table, err = loaded.MetadataStats(field)
	} else {
		table, err = loaded.Metadata(field)
	}
	if err != nil {
		return writeStudyMetadataOutput(common.jsonOutput, studyMetadataOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	if outPath != "" {
		format, err := tabular.ParseFormat(formatName, outPath)
		if err == nil {
			err = tabular.WriteFile(outPath, format, table)
		}
		if err != nil {
			return writeStudyMetadataOutput(common.jsonOutput, studyMetadataOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitIOFailure))
		}
	}
	return writeStudyMetadataOutput(common.jsonOutput, studyMetadataOutput{
		OK:      true,
		Field:   string(field),
		Stats:   statsOnly,
		Columns: table.Columns,
		Rows:    table.Rows,
		Path:    outPath,
	}, exitOK)
}

func runStudyCheck(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Validate a study definition and print the subject names, days, and sample labels it implies.")
	}
	flagSet := newFlagSet("study-check")
	var jsonOutput bool
	var helpFlag bool
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")
	if err := flagSet.Parse(splitFlags(arguments, valueFlags)); err != nil {
		return writeStudyCheckOutput(jsonOutput, studyCheckOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	if helpFlag {
		printStudyUsage()
		return exitOK
	}
	path, err := singlePath(flagSet.Args(), "study.yaml")
	if err != nil {
		return writeStudyCheckOutput(jsonOutput, studyCheckOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	definition, err := protocol.Load(path)
	if err != nil {
		return writeStudyCheckOutput(jsonOutput, studyCheckOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInvalidInput))
	}
	return writeStudyCheckOutput(jsonOutput, studyCheckOutput{
		OK:           true,
		StudyName:    definition.StudyName,
		NumSubjects:  definition.SubjectCount(),
		NumDays:      definition.NumDays,
		SubjectNames: definition.SubjectNames(),
		DayIndices:   definition.DayIndices(),
		SampleLabels: definition.SampleLabels(),
	}, exitOK)
}

func writeStudyMetadataOutput(jsonOutput bool, output studyMetadataOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		fmt.Printf("study metadata error: %s\n", output.Error)
		return exitCode
	}
	writer := csv.NewWriter(os.Stdout)
	_ = writer.Write(output.Columns)
	_ = writer.WriteAll(output.Rows)
	return exitCode
}

func writeStudyCheckOutput(jsonOutput bool, output studyCheckOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		fmt.Printf("study check error: %s\n", output.Error)
		return exitCode
	}
	fmt.Printf("study check: name=%s subjects=%d days=%d\n", output.StudyName, output.NumSubjects, output.NumDays)
	fmt.Printf("samples: %s\n", strings.Join(output.SampleLabels, ","))
	return exitCode
}

func printStudyUsage() {
	fmt.Println("Usage:")
	fmt.Println("  carwatch study export <root> --out <file> [--duplicates raise|keep-first|keep-last] [--concurrency <n>] [--format csv|json|xlsx] [--split night|day] [--no-sampling] [--no-awakening] [--no-evening] [--wide] [--json] [--explain]")
	fmt.Println("  carwatch study metadata <root> --field <android_version|app_version|phone_model|phone_manufacturer> [--stats] [--out <file>] [--json] [--explain]")
	fmt.Println("  carwatch study check <study.yaml> [--json] [--explain]")
}
