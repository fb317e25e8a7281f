package logs

import (
	"archive/zip"
	"cmp"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	// Zone data for hosts without a system tz database.
	_ "time/tzdata"

	"go.uber.org/zap"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
	"github.com/mad-lab-fau/carwatch/core/fsx"
	"github.com/mad-lab-fau/carwatch/core/logging"
)

const (
	DefaultTimezone     = "Europe/Berlin"
	DefaultNumSamples   = 5
	DefaultSamplePrefix = "S"
	DefaultSampleStart  = 1

	logFileExtension = ".csv"
	archiveExtension = ".zip"
	maxEntryBytes    = 256 * 1024 * 1024
)

// Options control loading and every derived view of one participant.
type Options struct {
	// Location is the study zone. Nil means Europe/Berlin.
	Location      *time.Location
	ErrorHandling ErrorHandling
	// Logger receives non-fatal diagnostics. Nil discards them.
	Logger *zap.Logger
	// NumSamples is the number of morning samples per session; scanned
	// ids at or above it are evening samples.
	NumSamples    int
	SamplePrefix  string
	SampleStartID *int
	// ExtractFolder extracts archives next to themselves before loading.
	ExtractFolder     bool
	OverwriteUnzipped bool
}

func (opts Options) withDefaults() (Options, error) {
	if opts.Location == nil {
		location, err := LoadLocation(DefaultTimezone)
		if err != nil {
			return opts, err
		}
		opts.Location = location
	}
	opts.Logger = logging.OrNop(opts.Logger)
	if opts.NumSamples <= 0 {
		opts.NumSamples = DefaultNumSamples
	}
	if opts.SamplePrefix == "" {
		opts.SamplePrefix = DefaultSamplePrefix
	}
	if opts.SampleStartID == nil {
		start := DefaultSampleStart
		opts.SampleStartID = &start
	}
	return opts, nil
}

// LoadLocation resolves an IANA zone name. Empty means Europe/Berlin.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultTimezone
	}
	location, err := time.LoadLocation(strings.TrimSpace(name))
	if err != nil {
		return nil, coreerrors.Newf(
			coreerrors.ErrUsage,
			"timezone_unknown",
			"use an IANA zone name such as Europe/Berlin",
			"load timezone %q: %w", name, err,
		)
	}
	return location, nil
}

// DetectAndLoad loads path as a folder when it is a directory and as an
// archive otherwise.
func DetectAndLoad(path string, opts Options) (*ParticipantLog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, sourceStatError(path, err)
	}
	if info.IsDir() {
		return FromFolder(path, opts)
	}
	return FromZip(path, opts)
}

// FromFolder loads every log file below folder. Hidden entries are skipped
// at every level.
func FromFolder(folder string, opts Options) (*ParticipantLog, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(folder)
	if err != nil {
		return nil, sourceStatError(folder, err)
	}
	if !info.IsDir() {
		return nil, extensionError(folder, "a folder")
	}

	files, err := listLogFiles(folder)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, noLogFilesError(folder)
	}
	var records []Record
	for _, relative := range files {
		// #nosec G304 -- file path is discovered below the caller-provided folder.
		content, err := os.ReadFile(filepath.Join(folder, relative))
		if err != nil {
			return nil, readError(folder, err)
		}
		parsed, err := parseLogFile(filepath.ToSlash(relative), content, opts.Location)
		if err != nil {
			return nil, err
		}
		records = append(records, parsed...)
	}
	return newParticipantLog(folder, records, opts)
}

// FromZip loads one participant archive, either directly from its entries or
// after extracting it into the sibling folder named after the archive.
func FromZip(path string, opts Options) (*ParticipantLog, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(path), archiveExtension) {
		return nil, extensionError(path, "a .zip file")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, sourceStatError(path, err)
	}
	if info.IsDir() {
		return nil, extensionError(path, "a .zip file")
	}

	zipReader, err := zip.OpenReader(path)
	if errors.Is(err, zip.ErrInsecurePath) {
		_ = zipReader.Close()
		return nil, unsafeEntryError(path, err)
	}
	if err != nil {
		return nil, coreerrors.Newf(
			coreerrors.ErrLogDataParse,
			"log_archive_invalid",
			"re-export the participant archive from the app",
			"open archive %s: %w", path, err,
		)
	}
	defer func() {
		_ = zipReader.Close()
	}()

	if opts.ExtractFolder {
		destination := strings.TrimSuffix(path, filepath.Ext(path))
		if err := extractArchive(&zipReader.Reader, destination, opts); err != nil {
			return nil, err
		}
		return FromFolder(destination, opts)
	}

	entries := make([]*zip.File, 0, len(zipReader.File))
	for _, entry := range zipReader.File {
		if isLogEntry(entry.Name, entry.FileInfo().IsDir()) {
			entries = append(entries, entry)
		}
	}
	if len(entries) == 0 {
		return nil, noLogFilesError(path)
	}
	slices.SortFunc(entries, func(a, b *zip.File) int {
		return cmp.Compare(a.Name, b.Name)
	})
	var records []Record
	for _, entry := range entries {
		content, err := readZipEntry(entry)
		if err != nil {
			return nil, readError(path, err)
		}
		parsed, err := parseLogFile(entry.Name, content, opts.Location)
		if err != nil {
			return nil, err
		}
		records = append(records, parsed...)
	}
	return newParticipantLog(path, records, opts)
}

// extractArchive writes the archive into destination unless destination
// already holds content and overwriting was not requested.
func extractArchive(archive *zip.Reader, destination string, opts Options) error {
	if err := os.MkdirAll(destination, 0o750); err != nil {
		return readError(destination, err)
	}
	empty, err := fsx.DirIsEmpty(destination)
	if err != nil {
		return readError(destination, err)
	}
	if !empty && !opts.OverwriteUnzipped {
		opts.Logger.Warn(
			"folder already contains log files which will be loaded; enable overwrite to extract again",
			zap.String("folder", destination),
		)
		return nil
	}
	for _, entry := range archive.File {
		target, err := fsx.JoinWithin(destination, entry.Name)
		if err != nil {
			if entry.FileInfo().IsDir() && strings.Trim(entry.Name, "/") == "" {
				continue
			}
			return unsafeEntryError(entry.Name, err)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return readError(destination, err)
			}
			continue
		}
		content, err := readZipEntry(entry)
		if err != nil {
			return readError(destination, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return readError(destination, err)
		}
		if err := fsx.WriteFileAtomic(target, content, 0o600); err != nil {
			return readError(destination, err)
		}
	}
	return nil
}

func listLogFiles(folder string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(folder, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == folder {
			return nil
		}
		if fsx.IsHiddenName(entry.Name()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), logFileExtension) {
			return nil
		}
		relative, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		files = append(files, relative)
		return nil
	})
	if err != nil {
		return nil, readError(folder, err)
	}
	sort.Strings(files)
	return files, nil
}

func isLogEntry(name string, isDir bool) bool {
	if isDir || fsx.HasHiddenComponent(name) {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), logFileExtension)
}

func readZipEntry(entry *zip.File) ([]byte, error) {
	if entry.UncompressedSize64 > maxEntryBytes {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", entry.Name, maxEntryBytes)
	}
	handle, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", entry.Name, err)
	}
	defer func() {
		_ = handle.Close()
	}()
	content, err := io.ReadAll(io.LimitReader(handle, maxEntryBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", entry.Name, err)
	}
	if len(content) > maxEntryBytes {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", entry.Name, maxEntryBytes)
	}
	return content, nil
}

func sourceStatError(path string, err error) error {
	if os.IsNotExist(err) {
		return coreerrors.Newf(
			coreerrors.ErrNotFound,
			"log_source_not_found",
			"check the participant folder or archive path",
			"%s does not exist", path,
		)
	}
	return readError(path, err)
}

func extensionError(path string, expected string) error {
	return coreerrors.Newf(
		coreerrors.ErrFileExtension,
		"log_source_extension",
		"pass a participant folder or a .zip archive",
		"%s is not %s", path, expected,
	)
}

func noLogFilesError(path string) error {
	return coreerrors.Newf(
		coreerrors.ErrNotFound,
		"log_files_missing",
		"log files are named *.csv; hidden entries are ignored",
		"no log files found in %s", path,
	)
}

func unsafeEntryError(name string, err error) error {
	return coreerrors.Newf(
		coreerrors.ErrLogDataParse,
		"log_archive_entry_unsafe",
		"the archive contains entries outside of its folder",
		"extract %s: %w", name, err,
	)
}

func readError(path string, err error) error {
	return coreerrors.Wrap(
		fmt.Errorf("read %s: %w", path, err),
		coreerrors.CategoryIOFailure,
		"log_source_unreadable",
		"check file permissions",
		false,
	)
}
