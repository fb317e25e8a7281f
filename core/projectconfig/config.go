package projectconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

const DefaultPath = ".carwatch/config.yaml"

type Config struct {
	Logs    LogsDefaults    `yaml:"logs"`
	Study   StudyDefaults   `yaml:"study"`
	Export  ExportDefaults  `yaml:"export"`
	Logging LoggingDefaults `yaml:"logging"`
}

type LogsDefaults struct {
	Timezone          string `yaml:"timezone"`
	ErrorHandling     string `yaml:"error_handling"`
	NumSamples        int    `yaml:"num_samples"`
	SamplePrefix      string `yaml:"sample_prefix"`
	SampleStartID     *int   `yaml:"sample_start_id"`
	ExtractFolder     bool   `yaml:"extract_folder"`
	OverwriteUnzipped bool   `yaml:"overwrite_unzipped"`
}

type StudyDefaults struct {
	ErrorHandling string `yaml:"error_handling"`
	Duplicates    string `yaml:"duplicates"`
	Concurrency   int    `yaml:"concurrency"`
}

type ExportDefaults struct {
	Format         string `yaml:"format"`
	Split          string `yaml:"split"`
	IncludeEvening *bool  `yaml:"include_evening"`
	Wide           bool   `yaml:"wide"`
}

type LoggingDefaults struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read project config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Config{}, nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse project config: %w", err)
	}
	configuration.normalize()
	if err := configuration.validate(); err != nil {
		return Config{}, err
	}
	return configuration, nil
}

func (configuration *Config) normalize() {
	configuration.Logs.Timezone = strings.TrimSpace(configuration.Logs.Timezone)
	configuration.Logs.ErrorHandling = strings.ToLower(strings.TrimSpace(configuration.Logs.ErrorHandling))
	configuration.Logs.SamplePrefix = strings.TrimSpace(configuration.Logs.SamplePrefix)
	configuration.Study.ErrorHandling = strings.ToLower(strings.TrimSpace(configuration.Study.ErrorHandling))
	configuration.Study.Duplicates = strings.ToLower(strings.TrimSpace(configuration.Study.Duplicates))
	configuration.Export.Format = strings.ToLower(strings.TrimSpace(configuration.Export.Format))
	configuration.Export.Split = strings.ToLower(strings.TrimSpace(configuration.Export.Split))
	configuration.Logging.Level = strings.ToLower(strings.TrimSpace(configuration.Logging.Level))
	configuration.Logging.Format = strings.ToLower(strings.TrimSpace(configuration.Logging.Format))
}

func (configuration Config) validate() error {
	if configuration.Logs.NumSamples < 0 {
		return fmt.Errorf("logs.num_samples must be >= 0")
	}
	if configuration.Logs.SampleStartID != nil && *configuration.Logs.SampleStartID < 0 {
		return fmt.Errorf("logs.sample_start_id must be >= 0")
	}
	if configuration.Study.Concurrency < 0 {
		return fmt.Errorf("study.concurrency must be >= 0")
	}
	return nil
}
