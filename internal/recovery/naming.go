package recovery

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrTargetExists is returned when the finalized name is already taken.
	ErrTargetExists = errors.New("target file already exists")
	// ErrUnrecognizedName is returned for files that match no naming scheme.
	ErrUnrecognizedName = errors.New("unrecognized recording file name")
)

var (
	tempPattern   = regexp.MustCompile(`^(.+)_(\d{8})_(\d{6})_temp_(\d+)\.mp4$`)
	legacyPattern = regexp.MustCompile(`^(.+)_(\d{8})_temp_(\d+)\.mp4$`)
	finalPattern  = regexp.MustCompile(`^(.+)_(\d{8})_(\d{6})_to_(\d{6})\.mp4$`)
	datePattern   = regexp.MustCompile(`^\d{8}$`)
)

const stampLayout = "150405"

// TempName is a parsed in-progress recording name:
// <prefix>_<YYYYMMDD>[_<HHMMSS>]_temp_<seq>.mp4 where prefix is
// <channelName>_<channelId>.
type TempName struct {
	Prefix string
	Date   string
	Start  string // empty for the legacy form
	Seq    string
}

// Legacy reports whether the name carries no start stamp.
func (n TempName) Legacy() bool { return n.Start == "" }

// ParseTempName parses a temp recording file name.
func ParseTempName(name string) (TempName, bool) {
	if m := tempPattern.FindStringSubmatch(name); m != nil {
		return TempName{Prefix: m[1], Date: m[2], Start: m[3], Seq: m[4]}, true
	}
	if m := legacyPattern.FindStringSubmatch(name); m != nil {
		return TempName{Prefix: m[1], Date: m[2], Seq: m[3]}, true
	}
	return TempName{}, false
}

// FinalName is a parsed finalized recording name:
// <prefix>_<YYYYMMDD>_<HHMMSS>_to_<HHMMSS>.mp4.
type FinalName struct {
	Prefix string
	Date   string
	Start  string
	End    string
}

// ParseFinalName parses a finalized recording file name.
func ParseFinalName(name string) (FinalName, bool) {
	m := finalPattern.FindStringSubmatch(name)
	if m == nil {
		return FinalName{}, false
	}
	return FinalName{Prefix: m[1], Date: m[2], Start: m[3], End: m[4]}, true
}

// String renders the canonical file name.
func (n FinalName) String() string {
	return fmt.Sprintf("%s_%s_%s_to_%s.mp4", n.Prefix, n.Date, n.Start, n.End)
}

// Span is the duration named by the start and end stamps. An end before
// the start means the recording crossed midnight.
func (n FinalName) Span() time.Duration {
	start, err1 := stampSeconds(n.Start)
	end, err2 := stampSeconds(n.End)
	if err1 != nil || err2 != nil {
		return 0
	}
	d := end - start
	if d < 0 {
		d += 24 * 3600
	}
	return time.Duration(d) * time.Second
}

// Stamp formats t as HHMMSS in loc.
func Stamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(stampLayout)
}

func stampSeconds(s string) (int, error) {
	t, err := time.Parse(stampLayout, s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
}

func isTempName(name string) bool {
	_, ok := ParseTempName(name)
	return ok
}

func isMP4(name string) bool {
	return strings.HasSuffix(name, ".mp4")
}
