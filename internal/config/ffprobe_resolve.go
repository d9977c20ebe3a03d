package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveFFprobeBin returns the effective ffprobe binary.
//
// Resolution order:
// 1) Explicit ffprobeBin (VPS_FFPROBE_BIN)
// 2) Sibling of a concrete ffmpeg path (.../ffmpeg -> .../ffprobe) if it exists
// 3) Empty string (caller falls back to PATH lookup)
func ResolveFFprobeBin(ffprobeBin, ffmpegBin string) string {
	return resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin, os.Stat)
}

func resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	if bin := strings.TrimSpace(ffprobeBin); bin != "" {
		return bin
	}

	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if !strings.ContainsRune(ffmpegBin, '/') || filepath.Base(ffmpegBin) != "ffmpeg" {
		return ""
	}

	candidate := filepath.Join(filepath.Dir(ffmpegBin), "ffprobe")
	if fi, err := stat(candidate); err == nil && fi != nil && !fi.IsDir() {
		return candidate
	}
	return ""
}
