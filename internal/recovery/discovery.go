package recovery

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	xglog "github.com/yoyostream/transcoderd/internal/log"
)

const fallbackDirPrefix = "stream_"

// channels returns the channels to sweep: the record schedules when any
// are active, otherwise every stream_* directory under RecordingsPath.
func (s *Service) channels(ctx context.Context) []Channel {
	logger := xglog.WithContext(ctx, s.logger)

	var out []Channel
	if s.configs != nil {
		for _, cfg := range s.configs.Configs() {
			storage := cfg.StoragePath
			if storage == "" {
				storage = s.opts.RecordingsPath
			}
			rec := cfg
			out = append(out, Channel{
				ID:          cfg.ChannelID,
				Name:        cfg.ChannelName,
				StoragePath: storage,
				Record:      &rec,
			})
		}
	}
	if len(out) > 0 {
		logger.Debug().Int("channels", len(out)).Msg("sweeping channels from record schedules")
		return out
	}

	entries, err := afero.ReadDir(s.fs, s.opts.RecordingsPath)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldPath, s.opts.RecordingsPath).Msg("recordings directory not readable")
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), fallbackDirPrefix) {
			continue
		}
		out = append(out, Channel{ID: e.Name(), Name: e.Name(), StoragePath: s.opts.RecordingsPath})
	}
	logger.Info().Int("channels", len(out)).Msg("no record schedules, sweeping stream directories")
	return out
}

// dateDirs returns the newest ScanDateDirs YYYYMMDD directories of ch.
func (s *Service) dateDirs(ch Channel) []string {
	root := filepath.Join(ch.StoragePath, ch.ID)
	entries, err := afero.ReadDir(s.fs, root)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str(xglog.FieldPath, root).Msg("channel directory not readable")
		}
		return nil
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() && datePattern.MatchString(e.Name()) {
			dates = append(dates, e.Name())
		}
	}
	sort.Strings(dates)
	if n := s.opts.ScanDateDirs; n > 0 && len(dates) > n {
		dates = dates[len(dates)-n:]
	}
	for i, d := range dates {
		dates[i] = filepath.Join(root, d)
	}
	return dates
}

// scan lists the .mp4 files of ch modified after cutoff that keep accepts.
func (s *Service) scan(ch Channel, cutoff time.Time, keep func(name string) bool) []Artifact {
	var out []Artifact
	for _, dir := range s.dateDirs(ch) {
		entries, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			s.logger.Warn().Err(err).Str(xglog.FieldPath, dir).Msg("date directory not readable")
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !isMP4(name) || !keep(name) {
				continue
			}
			if !e.ModTime().After(cutoff) {
				continue
			}
			out = append(out, Artifact{
				Path:    filepath.Join(dir, name),
				Channel: ch,
				Size:    e.Size(),
				ModTime: e.ModTime(),
			})
		}
	}
	return out
}

func (s *Service) cutoff() time.Time {
	return s.now().Add(-time.Duration(s.opts.ScanRecentHours) * time.Hour)
}
