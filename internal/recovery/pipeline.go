package recovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"

	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/schedule"
	"github.com/yoyostream/transcoderd/internal/window"
)

// process fixes the queued artifacts one after another. A failing file
// is counted and skipped; only cancellation stops the sweep.
func (s *Service) process(ctx context.Context, queue []Artifact, r *Report) error {
	for i := range queue {
		runtime.Gosched()
		if err := ctx.Err(); err != nil {
			return err
		}
		s.processOne(ctx, &queue[i], r)
	}
	return nil
}

func (s *Service) processOne(ctx context.Context, a *Artifact, r *Report) {
	logger := xglog.WithContext(ctx, s.logger).With().
		Str(xglog.FieldChannelID, a.Channel.ID).
		Str(xglog.FieldPath, a.Path).
		Str("kind", string(a.Kind)).
		Logger()

	if s.prober.Playable(ctx, a.Path) {
		a.State = StatePlayable
	} else {
		a.State = StateCorrupt
		logger.Info().Msg("recording not playable, remuxing")
		if err := s.repairer.Remux(ctx, a.Path); err != nil {
			r.Failed++
			logger.Error().Err(err).Str(xglog.FieldEvent, "recovery.repair_failed").Msg("repair failed, original kept")
			return
		}
		a.State = StateRepaired
		r.Repaired++
	}

	var (
		target string
		err    error
	)
	switch a.Kind {
	case KindTemp:
		target, err = s.finalizeTemp(ctx, a)
	case KindWrongEndTime:
		target, err = s.fixEndTime(a)
	}

	switch {
	case errors.Is(err, ErrTargetExists):
		r.Collisions++
		logger.Warn().Str(xglog.FieldTargetPath, target).Msg("target file already exists, not overwriting")
	case errors.Is(err, errUnchanged):
		logger.Debug().Msg("end time already correct")
	case err != nil:
		r.Failed++
		logger.Error().Err(err).Msg("rename failed")
	default:
		a.State = StateFinalized
		if a.Kind == KindTemp {
			r.Renamed++
		} else {
			r.EndTimeFixed++
		}
		logger.Info().
			Str(xglog.FieldTargetPath, target).
			Str(xglog.FieldEvent, "recovery.file_renamed").
			Msg("recording renamed")
		a.Path = target
	}
}

var errUnchanged = errors.New("name unchanged")

// finalizeTemp renames a temp file to <prefix>_<date>_<start>_to_<end>.mp4.
// The end is the modification time. The start comes from the name, or
// for legacy names from end minus the probed duration.
func (s *Service) finalizeTemp(ctx context.Context, a *Artifact) (string, error) {
	name := baseName(a.Path)
	tn, ok := ParseTempName(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnrecognizedName, name)
	}
	info, err := s.fs.Stat(a.Path)
	if err != nil {
		return "", fmt.Errorf("stat: %w", err)
	}
	end := info.ModTime()

	start := tn.Start
	if tn.Legacy() {
		d, err := s.prober.Duration(ctx, a.Path)
		if err != nil {
			return "", fmt.Errorf("probe duration: %w", err)
		}
		start = Stamp(end.Add(-d), s.opts.Location)
	}

	final := FinalName{Prefix: tn.Prefix, Date: tn.Date, Start: start, End: Stamp(end, s.opts.Location)}
	target := filepath.Join(filepath.Dir(a.Path), final.String())
	return target, s.renameNoClobber(a.Path, target)
}

// fixEndTime replaces the end stamp of a finalized name with the
// modification time.
func (s *Service) fixEndTime(a *Artifact) (string, error) {
	fn, ok := ParseFinalName(baseName(a.Path))
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnrecognizedName, baseName(a.Path))
	}
	info, err := s.fs.Stat(a.Path)
	if err != nil {
		return "", fmt.Errorf("stat: %w", err)
	}
	newEnd := Stamp(info.ModTime(), s.opts.Location)
	if newEnd == fn.End {
		return "", errUnchanged
	}
	fn.End = newEnd
	target := filepath.Join(filepath.Dir(a.Path), fn.String())
	return target, s.renameNoClobber(a.Path, target)
}

func (s *Service) renameNoClobber(from, to string) error {
	exists, err := afero.Exists(s.fs, to)
	if err != nil {
		return fmt.Errorf("check target: %w", err)
	}
	if exists {
		return ErrTargetExists
	}
	if err := s.fs.Rename(from, to); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// wrongEndTime reports whether a finalized file ends exactly at the
// scheduled end time while its real duration disagrees with the name.
// Such files were closed by the schedule rather than by the recorder.
func (s *Service) wrongEndTime(ctx context.Context, path string, cfg *schedule.Config) bool {
	fn, ok := ParseFinalName(baseName(path))
	if !ok {
		return false
	}
	end, err := window.ParseTimeOfDay(cfg.EndTime)
	if err != nil || fn.End != end.HHMMSS() {
		return false
	}
	d, err := s.prober.Duration(ctx, path)
	if err != nil {
		return false
	}
	diff := math.Abs((d - fn.Span()).Seconds())
	return diff > s.opts.EndTimeTolerance.Seconds()
}

func baseName(path string) string {
	return filepath.Base(strings.TrimRight(path, "/"))
}
