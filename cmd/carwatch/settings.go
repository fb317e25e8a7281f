package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
	"github.com/mad-lab-fau/carwatch/core/logging"
	"github.com/mad-lab-fau/carwatch/core/logs"
	"github.com/mad-lab-fau/carwatch/core/projectconfig"
	"github.com/mad-lab-fau/carwatch/core/tabular"
)

// valueFlags lists every flag that takes an argument, for splitFlags.
var valueFlags = map[string]bool{
	"config":         true,
	"tz":             true,
	"error-handling": true,
	"num-samples":    true,
	"sample-prefix":  true,
	"sample-start":   true,
	"log-level":      true,
	"log-format":     true,
	"out":            true,
	"format":         true,
	"split":          true,
	"duplicates":     true,
	"concurrency":    true,
	"field":          true,
}

type commonFlags struct {
	configPath    string
	timezone      string
	errorHandling string
	numSamples    int
	samplePrefix  string
	sampleStart   int
	extract       bool
	overwrite     bool
	logLevel      string
	logFormat     string
	jsonOutput    bool
	help          bool
}

func newFlagSet(name string) *flag.FlagSet {
	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	return flagSet
}

func registerCommonFlags(flagSet *flag.FlagSet) *commonFlags {
	common := &commonFlags{}
	flagSet.StringVar(&common.configPath, "config", projectconfig.DefaultPath, "path to project defaults yaml")
	flagSet.StringVar(&common.timezone, "tz", "", "IANA timezone of the study (default Europe/Berlin)")
	flagSet.StringVar(&common.errorHandling, "error-handling", "", "reaction to inconsistent logs: ignore|warn|raise")
	flagSet.IntVar(&common.numSamples, "num-samples", 0, "morning samples per session")
	flagSet.StringVar(&common.samplePrefix, "sample-prefix", "", "prefix of sample labels")
	flagSet.IntVar(&common.sampleStart, "sample-start", 0, "id of the first sample label")
	flagSet.BoolVar(&common.extract, "extract", false, "extract archives next to themselves before loading")
	flagSet.BoolVar(&common.overwrite, "overwrite-unzipped", false, "re-extract archives into non-empty folders")
	flagSet.StringVar(&common.logLevel, "log-level", "", "diagnostic level: debug|info|warn|error")
	flagSet.StringVar(&common.logFormat, "log-format", "", "diagnostic format: console|json")
	flagSet.BoolVar(&common.jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&common.help, "help", false, "show help")
	return common
}

// resolved is the merged view of flags over project defaults.
type resolved struct {
	config projectconfig.Config
	logs   logs.Options
	logger *zap.Logger
}

func isDefaultProjectConfigPath(path string) bool {
	return filepath.Clean(strings.TrimSpace(path)) == filepath.Clean(projectconfig.DefaultPath)
}

func explicitFlags(flagSet *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	flagSet.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// resolve loads the project config and applies flags on top of it.
// studyScope prefers the study error handling default over the log one.
func (common *commonFlags) resolve(flagSet *flag.FlagSet, studyScope bool) (resolved, error) {
	configuration, err := projectconfig.Load(common.configPath, isDefaultProjectConfigPath(common.configPath))
	if err != nil {
		return resolved{}, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "config_invalid", "fix the project config file", false)
	}
	set := explicitFlags(flagSet)
	pick := func(name string, flagValue string, configValue string) string {
		if set[name] {
			return flagValue
		}
		return configValue
	}

	level := pick("log-level", common.logLevel, configuration.Logging.Level)
	format := pick("log-format", common.logFormat, configuration.Logging.Format)
	logger := logging.New(os.Stderr, level, format)

	location, err := logs.LoadLocation(pick("tz", common.timezone, configuration.Logs.Timezone))
	if err != nil {
		return resolved{}, err
	}
	handlingDefault := configuration.Logs.ErrorHandling
	if studyScope && configuration.Study.ErrorHandling != "" {
		handlingDefault = configuration.Study.ErrorHandling
	}
	handling, err := logs.ParseErrorHandling(pick("error-handling", common.errorHandling, handlingDefault))
	if err != nil {
		return resolved{}, err
	}

	opts := logs.Options{
		Location:          location,
		ErrorHandling:     handling,
		Logger:            logger,
		NumSamples:        configuration.Logs.NumSamples,
		SamplePrefix:      pick("sample-prefix", common.samplePrefix, configuration.Logs.SamplePrefix),
		SampleStartID:     configuration.Logs.SampleStartID,
		ExtractFolder:     configuration.Logs.ExtractFolder,
		OverwriteUnzipped: configuration.Logs.OverwriteUnzipped,
	}
	if set["num-samples"] {
		opts.NumSamples = common.numSamples
	}
	if set["sample-start"] {
		start := common.sampleStart
		opts.SampleStartID = &start
	}
	if set["extract"] {
		opts.ExtractFolder = common.extract
	}
	if set["overwrite-unzipped"] {
		opts.OverwriteUnzipped = common.overwrite
	}
	if opts.NumSamples < 0 || (opts.SampleStartID != nil && *opts.SampleStartID < 0) {
		return resolved{}, coreerrors.Newf(coreerrors.ErrUsage, "sample_settings_invalid",
			"pass non-negative sample settings", "--num-samples and --sample-start must be >= 0")
	}
	return resolved{config: configuration, logs: opts, logger: logger}, nil
}

type exportFlags struct {
	out         string
	format      string
	split       string
	noSampling  bool
	noAwakening bool
	noEvening   bool
	wide        bool
}

func registerExportFlags(flagSet *flag.FlagSet) *exportFlags {
	export := &exportFlags{}
	flagSet.StringVar(&export.out, "out", "", "output table path")
	flagSet.StringVar(&export.format, "format", "", "output format: csv|json|xlsx (default from --out extension)")
	flagSet.StringVar(&export.split, "split", "", "session split: night|day")
	flagSet.BoolVar(&export.noSampling, "no-sampling", false, "omit sampling time columns")
	flagSet.BoolVar(&export.noAwakening, "no-awakening", false, "omit awakening columns")
	flagSet.BoolVar(&export.noEvening, "no-evening", false, "omit evening samples")
	flagSet.BoolVar(&export.wide, "wide", false, "one row per participant")
	return export
}

func (export *exportFlags) resolve(flagSet *flag.FlagSet, defaults projectconfig.ExportDefaults) (logs.ExportOptions, tabular.Format, error) {
	set := explicitFlags(flagSet)
	split := defaults.Split
	if set["split"] {
		split = export.split
	}
	mode, err := logs.ParseSplitMode(split)
	if err != nil {
		return logs.ExportOptions{}, "", err
	}
	formatName := export.format
	if !set["format"] && filepath.Ext(export.out) == "" {
		formatName = defaults.Format
	}
	format, err := tabular.ParseFormat(formatName, export.out)
	if err != nil {
		return logs.ExportOptions{}, "", err
	}

	opts := logs.DefaultExportOptions()
	opts.Mode = mode
	opts.IncludeSampling = !export.noSampling
	opts.IncludeAwakening = !export.noAwakening
	if defaults.IncludeEvening != nil {
		opts.IncludeEvening = *defaults.IncludeEvening
	}
	if set["no-evening"] {
		opts.IncludeEvening = !export.noEvening
	}
	opts.Wide = defaults.Wide
	if set["wide"] {
		opts.Wide = export.wide
	}
	return opts, format, nil
}
