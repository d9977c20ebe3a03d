package schedule

import "time"

const statusTimeLayout = "2006-01-02 15:04:05"

// DispatchStats counts trigger outcomes since process start.
type DispatchStats struct {
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Skipped   uint64 `json:"skipped"`
	Missed    uint64 `json:"missed"`
}

// TaskStatus describes the registered triggers of one channel.
type TaskStatus struct {
	ChannelID    string `json:"channelId"`
	ChannelName  string `json:"channelName,omitempty"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	WorkdaysOnly bool   `json:"workdaysOnly"`
	HasStartTask bool   `json:"hasStartTask"`
	HasStopTask  bool   `json:"hasStopTask"`
	NextStart    string `json:"nextStart,omitempty"`
	NextStop     string `json:"nextStop,omitempty"`
}

// Status is a point-in-time view of a scheduler.
type Status struct {
	Name           string        `json:"name"`
	IsRunning      bool          `json:"isRunning"`
	TotalScheduled int           `json:"totalScheduled"`
	CurrentTime    string        `json:"currentTime"`
	Timezone       string        `json:"timezone"`
	LastReload     string        `json:"lastReload,omitempty"`
	LastFetchError string        `json:"lastFetchError,omitempty"`
	Dispatch       DispatchStats `json:"dispatch"`
	Tasks          []TaskStatus  `json:"tasks"`
}

// Status returns a snapshot for the admin API.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.opts.Location
	st := Status{
		Name:           s.binding.Name,
		IsRunning:      s.running,
		TotalScheduled: len(s.tasks),
		CurrentTime:    s.opts.Clock.Now().In(loc).Format(statusTimeLayout),
		Timezone:       loc.String(),
		Dispatch:       s.stats,
		Tasks:          make([]TaskStatus, 0, len(s.tasks)),
	}
	if !s.lastReload.IsZero() {
		st.LastReload = s.lastReload.In(loc).Format(statusTimeLayout)
	}
	if s.lastFetchErr != nil {
		st.LastFetchError = s.lastFetchErr.Error()
	}

	for _, cfg := range s.configs {
		t, ok := s.tasks[cfg.ChannelID]
		if !ok {
			continue
		}
		nextStart, nextStop := t.next()
		st.Tasks = append(st.Tasks, TaskStatus{
			ChannelID:    cfg.ChannelID,
			ChannelName:  cfg.ChannelName,
			StartTime:    cfg.StartTime,
			EndTime:      cfg.EndTime,
			WorkdaysOnly: cfg.WorkdaysOnly,
			HasStartTask: true,
			HasStopTask:  !t.window.FullDay(),
			NextStart:    formatNext(nextStart, loc),
			NextStop:     formatNext(nextStop, loc),
		})
	}
	return st
}

func formatNext(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(statusTimeLayout)
}

func (s *Scheduler) countResult(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.stats.Succeeded++
	} else {
		s.stats.Failed++
	}
}

func (s *Scheduler) countSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Skipped++
}

func (s *Scheduler) countMissed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Missed++
}
