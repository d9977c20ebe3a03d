package workday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrCalendarUnavailable is returned when no calendar can be obtained for a year.
var ErrCalendarUnavailable = errors.New("workday calendar unavailable")

// Source fetches the calendar of one year.
type Source interface {
	Fetch(ctx context.Context, year int) (Calendar, error)
}

// HTTPSource fetches calendars from a URL template containing "{year}".
type HTTPSource struct {
	URLTemplate string
	Client      *http.Client
}

// NewHTTPSource returns a source with a bounded default client.
func NewHTTPSource(urlTemplate string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{URLTemplate: urlTemplate, Client: client}
}

// Fetch downloads and decodes the calendar for year.
func (s *HTTPSource) Fetch(ctx context.Context, year int) (Calendar, error) {
	url := strings.ReplaceAll(s.URLTemplate, "{year}", strconv.Itoa(year))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Calendar{}, fmt.Errorf("build calendar request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return Calendar{}, fmt.Errorf("fetch calendar %d: %w", year, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Calendar{}, fmt.Errorf("fetch calendar %d: unexpected status %d", year, resp.StatusCode)
	}

	var cal Calendar
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&cal); err != nil {
		return Calendar{}, fmt.Errorf("decode calendar %d: %w", year, err)
	}
	if cal.Year == 0 {
		cal.Year = year
	}
	if cal.Year != year {
		return Calendar{}, fmt.Errorf("calendar year mismatch: want %d, got %d", year, cal.Year)
	}
	return cal, nil
}
