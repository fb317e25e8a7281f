package main

import (
	"fmt"
	"strings"

	"github.com/mad-lab-fau/carwatch/core/logs"
	"github.com/mad-lab-fau/carwatch/core/tabular"
)

type logsInspectOutput struct {
	OK                bool                `json:"ok"`
	Source            string              `json:"source,omitempty"`
	SubjectID         string              `json:"subject_id,omitempty"`
	SubjectCondition  string              `json:"subject_condition,omitempty"`
	Records           int                 `json:"records"`
	LogDates          []string            `json:"log_dates,omitempty"`
	AppVersion        string              `json:"app_version,omitempty"`
	AndroidVersion    int                 `json:"android_version,omitempty"`
	PhoneModel        string              `json:"phone_model,omitempty"`
	PhoneManufacturer string              `json:"phone_manufacturer,omitempty"`
	PhoneBrand        string              `json:"phone_brand,omitempty"`
	Digest            string              `json:"digest,omitempty"`
	PayloadIssues     []logs.PayloadIssue `json:"payload_issues,omitempty"`
	errorFields
}

type sessionSummary struct {
	Key     string `json:"key"`
	Ordinal int    `json:"ordinal"`
	Records int    `json:"records"`
	First   string `json:"first"`
	Last    string `json:"last"`
}

type logsSessionsOutput struct {
	OK       bool             `json:"ok"`
	Source   string           `json:"source,omitempty"`
	Split    string           `json:"split,omitempty"`
	Sessions []sessionSummary `json:"sessions,omitempty"`
	errorFields
}

type tableWriteOutput struct {
	OK       bool     `json:"ok"`
	Path     string   `json:"path,omitempty"`
	Format   string   `json:"format,omitempty"`
	Columns  []string `json:"columns,omitempty"`
	Rows     int      `json:"rows"`
	Subjects int      `json:"subjects,omitempty"`
	errorFields
}

func runLogs(arguments []string) int {
	if len(arguments) == 0 {
		printLogsUsage()
		return exitInvalidInput
	}
	switch arguments[0] {
	case "inspect":
		return runLogsInspect(arguments[1:])
	case "sessions":
		return runLogsSessions(arguments[1:])
	case "export":
		return runLogsExport(arguments[1:])
	case "--explain":
		return writeExplain("Inspect, segment, and export the log of one participant folder or .zip archive.")
	default:
		printLogsUsage()
		return exitInvalidInput
	}
}

func runLogsInspect(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Load one participant log and report its subject, devices, log dates, canonical digest, and payloads that miss expected keys.")
	}
	flagSet := newFlagSet("logs-inspect")
	common := registerCommonFlags(flagSet)
	if err := flagSet.Parse(splitFlags(arguments, valueFlags)); err != nil {
		return writeLogsInspectOutput(common.jsonOutput, logsInspectOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	if common.help {
		printLogsUsage()
		return exitOK
	}
	path, err := singlePath(flagSet.Args(), "path")
	if err != nil {
		return writeLogsInspectOutput(common.jsonOutput, logsInspectOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	settings, err := common.resolve(flagSet, false)
	if err != nil {
		return writeLogsInspectOutput(common.jsonOutput, logsInspectOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInvalidInput))
	}
	defer func() { _ = settings.logger.Sync() }()

	participant, err := logs.DetectAndLoad(path, settings.logs)
	if err != nil {
		return writeLogsInspectOutput(common.jsonOutput, logsInspectOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	digest, err := participant.Digest()
	if err != nil {
		return writeLogsInspectOutput(common.jsonOutput, logsInspectOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	issues, err := participant.PayloadIssues()
	if err != nil {
		return writeLogsInspectOutput(common.jsonOutput, logsInspectOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeLogsInspectOutput(common.jsonOutput, logsInspectOutput{
		OK:                true,
		Source:            participant.Source(),
		SubjectID:         participant.SubjectID(),
		SubjectCondition:  participant.SubjectCondition(),
		Records:           participant.Len(),
		LogDates:          participant.LogDates(),
		AppVersion:        participant.AppVersion(),
		AndroidVersion:    participant.AndroidVersion(),
		PhoneModel:        participant.PhoneModel(),
		PhoneManufacturer: participant.PhoneManufacturer(),
		PhoneBrand:        participant.PhoneBrand(),
		Digest:            digest,
		PayloadIssues:     issues,
	}, exitOK)
}

func runLogsSessions(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("List the sessions of one participant log under the night or day split.")
	}
	flagSet := newFlagSet("logs-sessions")
	common := registerCommonFlags(flagSet)
	var split string
	flagSet.StringVar(&split, "split", "", "session split: night|day")
	if err := flagSet.Parse(splitFlags(arguments, valueFlags)); err != nil {
		return writeLogsSessionsOutput(common.jsonOutput, logsSessionsOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	if common.help {
		printLogsUsage()
		return exitOK
	}
	path, err := singlePath(flagSet.Args(), "path")
	if err != nil {
		return writeLogsSessionsOutput(common.jsonOutput, logsSessionsOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	settings, err := common.resolve(flagSet, false)
	if err != nil {
		return writeLogsSessionsOutput(common.jsonOutput, logsSessionsOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInvalidInput))
	}
	defer func() { _ = settings.logger.Sync() }()
	if !explicitFlags(flagSet)["split"] {
		split = settings.config.Export.Split
	}
	mode, err := logs.ParseSplitMode(split)
	if err != nil {
		return writeLogsSessionsOutput(common.jsonOutput, logsSessionsOutput{errorFields: fieldsForError(err)}, exitInvalidInput)
	}

	participant, err := logs.DetectAndLoad(path, settings.logs)
	if err != nil {
		return writeLogsSessionsOutput(common.jsonOutput, logsSessionsOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	sessions := participant.Sessions(mode)
	summaries := make([]sessionSummary, 0, len(sessions))
	for _, session := range sessions {
		first, last := session.Records[0], session.Records[len(session.Records)-1]
		summaries = append(summaries, sessionSummary{
			Key:     session.Key,
			Ordinal: session.Ordinal,
			Records: len(session.Records),
			First:   first.Timestamp.Format("2006-01-02 15:04:05"),
			Last:    last.Timestamp.Format("2006-01-02 15:04:05"),
		})
	}
	return writeLogsSessionsOutput(common.jsonOutput, logsSessionsOutput{
		OK:       true,
		Source:   participant.Source(),
		Split:    mode.String(),
		Sessions: summaries,
	}, exitOK)
}

func runLogsExport(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Export the sampling and awakening times of one participant as a csv, json, or xlsx table.")
	}
	flagSet := newFlagSet("logs-export")
	common := registerCommonFlags(flagSet)
	export := registerExportFlags(flagSet)
	if err := flagSet.Parse(splitFlags(arguments, valueFlags)); err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	if common.help {
		printLogsUsage()
		return exitOK
	}
	path, err := singlePath(flagSet.Args(), "path")
	if err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: usageFields(err.Error())}, exitInvalidInput)
	}
	if strings.TrimSpace(export.out) == "" {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: usageFields("missing required --out <file>")}, exitInvalidInput)
	}
	settings, err := common.resolve(flagSet, false)
	if err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInvalidInput))
	}
	defer func() { _ = settings.logger.Sync() }()
	opts, format, err := export.resolve(flagSet, settings.config.Export)
	if err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInvalidInput))
	}

	participant, err := logs.DetectAndLoad(path, settings.logs)
	if err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	table, err := participant.Export(opts)
	if err != nil {
		return writeTableOutput(common.jsonOutput, tableWriteOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return persistTable(common.jsonOutput, export.out, format, table, 0)
}

func persistTable(jsonOutput bool, path string, format tabular.Format, table tabular.Table, subjects int) int {
	if err := tabular.WriteFile(path, format, table); err != nil {
		return writeTableOutput(jsonOutput, tableWriteOutput{errorFields: fieldsForError(err)}, exitCodeForError(err, exitIOFailure))
	}
	return writeTableOutput(jsonOutput, tableWriteOutput{
		OK:       true,
		Path:     path,
		Format:   string(format),
		Columns:  table.Columns,
		Rows:     len(table.Rows),
		Subjects: subjects,
	}, exitOK)
}

func writeLogsInspectOutput(jsonOutput bool, output logsInspectOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		fmt.Printf("logs inspect error: %s\n", output.Error)
		return exitCode
	}
	fmt.Printf("logs inspect: subject=%s condition=%s records=%d dates=%s\n",
		output.SubjectID, output.SubjectCondition, output.Records, strings.Join(output.LogDates, ","))
	fmt.Printf("device: app=%s android=%d model=%s manufacturer=%s\n",
		output.AppVersion, output.AndroidVersion, output.PhoneModel, output.PhoneManufacturer)
	fmt.Printf("digest: %s\n", output.Digest)
	for _, issue := range output.PayloadIssues {
		fmt.Printf("- %s: %d payloads %s\n", issue.Action, issue.Count, issue.Detail)
	}
	return exitCode
}

func writeLogsSessionsOutput(jsonOutput bool, output logsSessionsOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		fmt.Printf("logs sessions error: %s\n", output.Error)
		return exitCode
	}
	fmt.Printf("logs sessions: split=%s sessions=%d\n", output.Split, len(output.Sessions))
	for _, session := range output.Sessions {
		fmt.Printf("- %d %s records=%d %s .. %s\n", session.Ordinal, session.Key, session.Records, session.First, session.Last)
	}
	return exitCode
}

func writeTableOutput(jsonOutput bool, output tableWriteOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		fmt.Printf("export error: %s\n", output.Error)
		return exitCode
	}
	fmt.Printf("export: wrote %d rows (%s) to %s\n", output.Rows, output.Format, output.Path)
	return exitCode
}

func printLogsUsage() {
	fmt.Println("Usage:")
	fmt.Println("  carwatch logs inspect <path> [--tz Europe/Berlin] [--error-handling ignore|warn|raise] [--json] [--explain]")
	fmt.Println("  carwatch logs sessions <path> [--split night|day] [--json] [--explain]")
	fmt.Println("  carwatch logs export <path> --out <file> [--format csv|json|xlsx] [--split night|day] [--no-sampling] [--no-awakening] [--no-evening] [--wide] [--json] [--explain]")
}
