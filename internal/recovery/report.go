package recovery

import (
	"encoding/json"
	"time"

	"github.com/yoyostream/transcoderd/internal/metrics"
)

// Report summarizes one sweep.
type Report struct {
	ID           string        `json:"id"`
	Mode         Mode          `json:"mode"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"-"`
	Scanned      int           `json:"scanned"`
	Fixed        int           `json:"fixed"`
	Renamed      int           `json:"renamed"`
	Repaired     int           `json:"repaired"`
	EndTimeFixed int           `json:"endTimeFixed"`
	Collisions   int           `json:"collisions"`
	Failed       int           `json:"failed"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// MarshalJSON adds the duration in seconds.
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	return json.Marshal(struct {
		plain
		DurationSeconds float64 `json:"durationSeconds"`
	}{plain(r), r.Duration.Seconds()})
}

func (r Report) counts() metrics.SweepCounts {
	return metrics.SweepCounts{
		Scanned:      r.Scanned,
		Fixed:        r.Fixed,
		Renamed:      r.Renamed,
		Repaired:     r.Repaired,
		EndTimeFixed: r.EndTimeFixed,
		Collisions:   r.Collisions,
		Failed:       r.Failed,
	}
}

// UnmarshalJSON restores Duration from durationSeconds.
func (r *Report) UnmarshalJSON(b []byte) error {
	type plain Report
	var aux struct {
		plain
		DurationSeconds float64 `json:"durationSeconds"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Report(aux.plain)
	r.Duration = time.Duration(aux.DurationSeconds * float64(time.Second))
	return nil
}
