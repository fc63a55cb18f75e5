package discovery

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/tixagent/internal/model"
)

// StaticEvents is the built-in list used when the feed is unavailable.
// Dates are placed relative to now so the list never goes stale.
func StaticEvents(now time.Time) []model.Event {
	day := func(offset int) string {
		return now.AddDate(0, 0, offset).Format("Jan 2, 2006")
	}
	untilSat := (int(time.Saturday) - int(now.Weekday()) + 7) % 7
	return []model.Event{
		{ID: "static-1", Name: "Late Night Jazz Session", Venue: "Blue Room", Date: day(untilSat), Time: "9:00 PM", Price: 25, Genre: "jazz"},
		{ID: "static-2", Name: "Indie Showcase", Venue: "The Warehouse", Date: day(untilSat + 1), Time: "7:30 PM", Price: 18, Genre: "indie"},
		{ID: "static-3", Name: "Open Mic Night", Venue: "Corner Cafe", Date: day(2), Time: "8:00 PM", IsFree: true, Genre: "folk"},
		{ID: "static-4", Name: "Techno Warehouse Rave", Venue: "Dock 9", Date: day(untilSat + 7), Time: "11:00 PM", Price: 40, Genre: "techno"},
		{ID: "static-5", Name: "Symphony in the Park", Venue: "Central Park Bandshell", Date: day(9), Time: "6:00 PM", IsFree: true, Genre: "classical"},
	}
}

type staticFile struct {
	Events []struct {
		ID     string  `yaml:"id"`
		Name   string  `yaml:"name"`
		Venue  string  `yaml:"venue"`
		Date   string  `yaml:"date"`
		Time   string  `yaml:"time"`
		Price  float64 `yaml:"price"`
		IsFree bool    `yaml:"is_free"`
		Genre  string  `yaml:"genre"`
		URL    string  `yaml:"url"`
	} `yaml:"events"`
}

// LoadEvents reads a fallback event list from a YAML file.
func LoadEvents(path string) ([]model.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static events: %w", err)
	}
	return ParseEvents(data)
}

// ParseEvents decodes a YAML event list.
func ParseEvents(data []byte) ([]model.Event, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse static events: %w", err)
	}
	out := make([]model.Event, 0, len(f.Events))
	for i, e := range f.Events {
		if e.Name == "" {
			return nil, fmt.Errorf("static event %d has no name", i+1)
		}
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("static-%d", i+1)
		}
		out = append(out, model.Event{
			ID: id, Name: e.Name, Venue: e.Venue, Date: e.Date, Time: e.Time,
			Price: e.Price, IsFree: e.IsFree, Genre: e.Genre, URL: e.URL,
		})
	}
	return out, nil
}

// Fallback returns a fallback provider serving events when non-empty and
// StaticEvents otherwise.
func Fallback(events []model.Event) func(now time.Time) []model.Event {
	return func(now time.Time) []model.Event {
		if len(events) > 0 {
			return events
		}
		return StaticEvents(now)
	}
}
