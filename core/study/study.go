// Package study loads the logs of every participant below a study folder and
// builds study-wide tables keyed by subject.
package study

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	coreerrors "github.com/mad-lab-fau/carwatch/core/errors"
	"github.com/mad-lab-fau/carwatch/core/fsx"
	"github.com/mad-lab-fau/carwatch/core/logging"
	"github.com/mad-lab-fau/carwatch/core/logs"
)

// DuplicatePolicy decides what happens when two sources resolve to the same
// subject ID.
type DuplicatePolicy int

const (
	DuplicateRaise DuplicatePolicy = iota
	DuplicateKeepFirst
	DuplicateKeepLast
)

func (policy DuplicatePolicy) String() string {
	switch policy {
	case DuplicateKeepFirst:
		return "keep-first"
	case DuplicateKeepLast:
		return "keep-last"
	default:
		return "raise"
	}
}

func ParseDuplicatePolicy(raw string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "raise":
		return DuplicateRaise, nil
	case "keep-first", "keep_first", "first":
		return DuplicateKeepFirst, nil
	case "keep-last", "keep_last", "last":
		return DuplicateKeepLast, nil
	default:
		return DuplicateRaise, coreerrors.Newf(
			coreerrors.ErrUsage,
			"duplicate_policy_unknown",
			"use one of raise, keep-first, keep-last",
			"unknown duplicate policy %q", raw,
		)
	}
}

type Options struct {
	// Logs is passed to every participant. Its ErrorHandling also decides
	// whether a participant that fails to load aborts the study.
	Logs       logs.Options
	Duplicates DuplicatePolicy
	// Concurrency bounds parallel participant loads. Zero means NumCPU.
	Concurrency int
}

// StudyLog maps subject IDs to participant logs.
type StudyLog struct {
	subjects     []string
	participants map[string]*logs.ParticipantLog
}

// FromFolder loads one participant per non-hidden folder or .zip archive
// directly below root.
func FromFolder(ctx context.Context, root string, opts Options) (*StudyLog, error) {
	logger := logging.OrNop(opts.Logs.Logger)
	opts.Logs.Logger = logger

	sources, err := participantSources(root, opts.Logs.ExtractFolder)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, noParticipantsError(root)
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	loaded := make([]*logs.ParticipantLog, len(sources))
	failures := make([]error, len(sources))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for index, source := range sources {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			participant, err := logs.DetectAndLoad(source, opts.Logs)
			if err != nil {
				if opts.Logs.ErrorHandling == logs.ErrorHandlingRaise {
					return err
				}
				failures[index] = err
				return nil
			}
			loaded[index] = participant
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var participants []*logs.ParticipantLog
	for index, participant := range loaded {
		if failures[index] != nil {
			logger.Warn("skipping participant that failed to load",
				zap.String("source", sources[index]),
				zap.String("code", coreerrors.CodeOf(failures[index])),
				zap.Error(failures[index]),
			)
			continue
		}
		participants = append(participants, participant)
	}
	study, err := assemble(participants, opts.Duplicates, logger)
	if err != nil {
		return nil, err
	}
	if study.Len() == 0 {
		return nil, noParticipantsError(root)
	}
	return study, nil
}

// New builds a study from already loaded participants.
func New(participants []*logs.ParticipantLog, duplicates DuplicatePolicy, logger *zap.Logger) (*StudyLog, error) {
	return assemble(participants, duplicates, logging.OrNop(logger))
}

func assemble(participants []*logs.ParticipantLog, duplicates DuplicatePolicy, logger *zap.Logger) (*StudyLog, error) {
	study := &StudyLog{participants: map[string]*logs.ParticipantLog{}}
	for _, participant := range participants {
		subject := participant.SubjectID()
		if subject == "" {
			logger.Warn("skipping participant without subject id", zap.String("source", participant.Source()))
			continue
		}
		previous, exists := study.participants[subject]
		if !exists {
			study.participants[subject] = participant
			study.subjects = append(study.subjects, subject)
			continue
		}
		switch duplicates {
		case DuplicateKeepFirst:
			logger.Warn("duplicate subject id, keeping first source",
				zap.String("subject", subject), zap.String("kept", previous.Source()), zap.String("dropped", participant.Source()))
		case DuplicateKeepLast:
			logger.Warn("duplicate subject id, keeping last source",
				zap.String("subject", subject), zap.String("kept", participant.Source()), zap.String("dropped", previous.Source()))
			study.participants[subject] = participant
		default:
			return nil, coreerrors.Newf(
				coreerrors.ErrLogDataParse,
				"study_duplicate_subject",
				"remove the duplicate export or choose keep-first or keep-last",
				"subject %s appears in %s and %s", subject, previous.Source(), participant.Source(),
			)
		}
	}
	slices.Sort(study.subjects)
	return study, nil
}

// participantSources lists candidate participant paths in name order. With
// extraction enabled, a folder that is the extraction of a sibling archive is
// not a separate participant.
func participantSources(root string, extracting bool) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, coreerrors.Newf(
				coreerrors.ErrNotFound,
				"log_source_not_found",
				"check the study folder path",
				"%s does not exist", root,
			)
		}
		return nil, coreerrors.Wrap(
			fmt.Errorf("read %s: %w", root, err),
			coreerrors.CategoryIOFailure,
			"log_source_unreadable",
			"check folder permissions",
			false,
		)
	}
	archives := map[string]bool{}
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".zip") {
			archives[strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))] = true
		}
	}
	var sources []string
	for _, entry := range entries {
		name := entry.Name()
		if fsx.IsHiddenName(name) {
			continue
		}
		switch {
		case entry.IsDir():
			if extracting && archives[name] {
				continue
			}
		case strings.EqualFold(filepath.Ext(name), ".zip"):
		default:
			continue
		}
		sources = append(sources, filepath.Join(root, name))
	}
	return sources, nil
}

func noParticipantsError(root string) error {
	return coreerrors.Newf(
		coreerrors.ErrNotFound,
		"study_participants_missing",
		"a study folder holds one folder or .zip archive per participant",
		"no participant logs found in %s", root,
	)
}

func (study *StudyLog) Len() int {
	return len(study.subjects)
}

// Subjects returns the subject IDs in sorted order.
func (study *StudyLog) Subjects() []string {
	return slices.Clone(study.subjects)
}

func (study *StudyLog) Participant(subject string) (*logs.ParticipantLog, bool) {
	participant, ok := study.participants[subject]
	return participant, ok
}
