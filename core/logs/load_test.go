package logs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
	"github.com/mad-lab-fau/carwatch/internal/testutil"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, observed := observer.New(zap.DebugLevel)
	return zap.New(core), observed
}

func warnings(observed *observer.ObservedLogs) int {
	return observed.FilterLevelExact(zap.WarnLevel).Len()
}

func fixtureFolder(t *testing.T, subject string) string {
	t.Helper()
	return testutil.WriteLogFolder(t, filepath.Join(t.TempDir(), subject), testutil.ParticipantFiles(t, subject, 29))
}

func loadFixture(t *testing.T) *ParticipantLog {
	t.Helper()
	participant, err := FromFolder(fixtureFolder(t, "AB12C"), Options{ErrorHandling: ErrorHandlingRaise})
	require.NoError(t, err)
	return participant
}

func TestFromFolderLoadsSortedRecords(t *testing.T) {
	participant := loadFixture(t)
	records := participant.Records()
	require.Len(t, records, 11)
	for index := 1; index < len(records); index++ {
		assert.False(t, records[index].Timestamp.Before(records[index-1].Timestamp))
	}
	assert.Equal(t, "AB12C", participant.SubjectID())
	assert.Equal(t, "UNDEFINED", participant.SubjectCondition())
	assert.Equal(t, []string{"2019-12-06", "2019-12-07", "2019-12-08"}, participant.LogDates())
}

func TestFromFolderSkipsHiddenAndForeignEntries(t *testing.T) {
	dir := fixtureFolder(t, "AB12C")
	testutil.WriteFile(t, filepath.Join(dir, ".hidden.csv"), []byte("garbage\n"))
	testutil.WriteFile(t, filepath.Join(dir, "__MACOSX", "day.csv"), []byte("garbage\n"))
	testutil.WriteFile(t, filepath.Join(dir, "notes.txt"), []byte("garbage\n"))

	participant, err := FromFolder(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 11, participant.Len())
}

func TestFromFolderReadsNestedFolders(t *testing.T) {
	root := t.TempDir()
	testutil.WriteLogFolder(t, filepath.Join(root, "export"), testutil.ParticipantFiles(t, "AB12C", 29))
	participant, err := FromFolder(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, "AB12C", participant.SubjectID())
}

func TestFromFolderErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := FromFolder(filepath.Join(t.TempDir(), "missing"), Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, coreerrors.ErrNotFound))
		assert.Equal(t, "log_source_not_found", coreerrors.CodeOf(err))
	})
	t.Run("empty", func(t *testing.T) {
		_, err := FromFolder(t.TempDir(), Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, coreerrors.ErrNotFound))
		assert.Equal(t, "log_files_missing", coreerrors.CodeOf(err))
	})
	t.Run("regular file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.csv")
		testutil.WriteFile(t, path, []byte("1575755581123;lights_out;{}\n"))
		_, err := FromFolder(path, Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, coreerrors.ErrFileExtension))
	})
}

func TestFromZipErrors(t *testing.T) {
	dir := t.TempDir()
	t.Run("missing archive", func(t *testing.T) {
		_, err := FromZip(filepath.Join(dir, "test.zip"), Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, coreerrors.ErrNotFound))
	})
	t.Run("wrong extension checked first", func(t *testing.T) {
		_, err := FromZip(filepath.Join(dir, "test.csv"), Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, coreerrors.ErrFileExtension))
		assert.Equal(t, coreerrors.CategoryInvalidInput, coreerrors.CategoryOf(err))
	})
	t.Run("folder", func(t *testing.T) {
		_, err := FromZip(dir, Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, coreerrors.ErrFileExtension))
	})
	t.Run("folder named like an archive", func(t *testing.T) {
		folder := filepath.Join(dir, "named.zip")
		require.NoError(t, os.MkdirAll(folder, 0o750))
		_, err := FromZip(folder, Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, coreerrors.ErrFileExtension))
	})
	t.Run("no log entries", func(t *testing.T) {
		path := testutil.WriteZip(t, filepath.Join(dir, "empty.zip"), map[string][]byte{
			"__MACOSX/._day.csv": []byte("garbage"),
			"readme.txt":         []byte("hello"),
		})
		_, err := FromZip(path, Options{})
		require.Error(t, err)
		assert.Equal(t, "log_files_missing", coreerrors.CodeOf(err))
	})
	t.Run("corrupt archive", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.zip")
		testutil.WriteFile(t, path, []byte("not a zip"))
		_, err := FromZip(path, Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, coreerrors.ErrLogDataParse))
		assert.Equal(t, "log_archive_invalid", coreerrors.CodeOf(err))
	})
}

func TestFromZipInMemoryMatchesFolder(t *testing.T) {
	files := testutil.ParticipantFiles(t, "AB12C", 29)
	files["__MACOSX/._carwatch.csv"] = []byte("garbage")
	archive := testutil.WriteZip(t, filepath.Join(t.TempDir(), "AB12C.zip"), files)

	fromZip, err := FromZip(archive, Options{ErrorHandling: ErrorHandlingRaise})
	require.NoError(t, err)
	fromFolder := loadFixture(t)

	zipDigest, err := fromZip.Digest()
	require.NoError(t, err)
	folderDigest, err := fromFolder.Digest()
	require.NoError(t, err)
	assert.Equal(t, folderDigest, zipDigest)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(archive), "AB12C"))
	assert.True(t, os.IsNotExist(statErr), "in-memory loading must not extract")
}

func TestFromZipExtractIsIdempotentWithOneWarning(t *testing.T) {
	archive := testutil.WriteZip(t, filepath.Join(t.TempDir(), "AB12C.zip"), testutil.ParticipantFiles(t, "AB12C", 29))
	logger, observed := observedLogger()
	opts := Options{ExtractFolder: true, Logger: logger, Location: berlin(t)}

	first, err := FromZip(archive, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, warnings(observed))
	entries, err := os.ReadDir(filepath.Join(filepath.Dir(archive), "AB12C"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	second, err := FromZip(archive, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, warnings(observed))
	assert.Equal(t, first.Records(), second.Records())
}

func TestFromZipOverwriteReextracts(t *testing.T) {
	archive := testutil.WriteZip(t, filepath.Join(t.TempDir(), "AB12C.zip"), testutil.ParticipantFiles(t, "AB12C", 29))
	destination := filepath.Join(filepath.Dir(archive), "AB12C")
	testutil.WriteFile(t, filepath.Join(destination, "carwatch_AB12C_20191208.csv"), []byte("1575755581123;lights_out;{}\n"))

	logger, observed := observedLogger()
	participant, err := FromZip(archive, Options{ExtractFolder: true, OverwriteUnzipped: true, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, 0, warnings(observed))
	assert.Equal(t, 11, participant.Len())
}

func TestFromZipRejectsEscapingEntries(t *testing.T) {
	archive := testutil.WriteZip(t, filepath.Join(t.TempDir(), "evil.zip"), map[string][]byte{
		"../escape.csv": []byte("1575755581123;lights_out;{}\n"),
	})
	_, err := FromZip(archive, Options{ExtractFolder: true})
	require.Error(t, err)
	assert.Equal(t, "log_archive_entry_unsafe", coreerrors.CodeOf(err))
	_, statErr := os.Stat(filepath.Join(filepath.Dir(archive), "escape.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDetectAndLoad(t *testing.T) {
	folder := fixtureFolder(t, "AB12C")
	participant, err := DetectAndLoad(folder, Options{})
	require.NoError(t, err)
	assert.Equal(t, "AB12C", participant.SubjectID())

	archive := testutil.WriteZip(t, filepath.Join(t.TempDir(), "DE34F.zip"), testutil.ParticipantFiles(t, "DE34F", 30))
	participant, err = DetectAndLoad(archive, Options{})
	require.NoError(t, err)
	assert.Equal(t, "DE34F", participant.SubjectID())

	_, err = DetectAndLoad(filepath.Join(t.TempDir(), "nothing"), Options{})
	assert.True(t, errors.Is(err, coreerrors.ErrNotFound))
}

func TestLoadLocation(t *testing.T) {
	location, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", location.String())

	_, err = LoadLocation("Mars/Olympus")
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerrors.ErrUsage))
}

func TestOtherTimezoneShiftsDates(t *testing.T) {
	location, err := LoadLocation("America/New_York")
	require.NoError(t, err)
	participant, err := FromFolder(fixtureFolder(t, "AB12C"), Options{Location: location})
	require.NoError(t, err)
	assert.Equal(t, "2019-12-06", participant.Records()[0].Date())
	assert.Equal(t, "America/New_York", participant.Location().String())
}
