package catalog

import (
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Room is one bookable space in the venue.
type Room struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Capacity       int      `yaml:"capacity"`
	Features       []string `yaml:"features"`
	OperatingHours []string `yaml:"operating_hours"` // e.g. "08:00-22:00"
}

// Product is a priced line item (catering, AV equipment, staffing, ...).
type Product struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Category  string  `yaml:"category"`
	UnitPrice float64 `yaml:"unit_price"`
	Unit      string  `yaml:"unit"` // per_event, per_person, per_hour, per_day, per_night, per_week, flat_fee
}

// MenuItem is a cateribng menu line, priced per person.
type MenuItem struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	PricePP   float64 `yaml:"price_per_person"`
	Allergens []string `yaml:"allergens"`
}

// Venue is the full venue config: rooms, products, menus, and global
// operating constraints (§4.1, supplemented with list_common_room_features
// and suggest_dates).
type Venue struct {
	Rooms        []Room     `yaml:"rooms"`
	Products     []Product  `yaml:"products"`
	Menus        []MenuItem `yaml:"menus"`
	ClosedDates  []string   `yaml:"closed_dates"` // ISO dates the venue is unavailable entirely
	OpenWeekdays []string   `yaml:"open_weekdays"` // e.g. ["mon","tue","wed","thu","fri","sat"]
}

// LoadVenue reads a Venue definition from a YAML file.
func LoadVenue(path string) (*Venue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v Venue
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// RoomByID looks up a room by ID, returning false when absent.
func (v *Venue) RoomByID(id string) (Room, bool) {
	for _, r := range v.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

// ProductByID looks up a product by ID, returning false when absent.
func (v *Venue) ProductByID(id string) (Product, bool) {
	for _, p := range v.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// RoomsWithCapacity returns rooms whose capacity meets or exceeds min,
// ordered by ascending capacity (smallest fit first).
func (v *Venue) RoomsWithCapacity(min int) []Room {
	var out []Room
	for _, r := range v.Rooms {
		if r.Capacity >= min {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Capacity < out[j].Capacity })
	return out
}

// ListCommonRoomFeatures returns the features present on every configured
// room — the intersection, not the union, since the accessor answers
// "what can a client count on regardless of which room they get". Returns
// nil when there are no rooms.
func (v *Venue) ListCommonRoomFeatures() []string {
	if len(v.Rooms) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, r := range v.Rooms {
		seen := make(map[string]struct{}, len(r.Features))
		for _, f := range r.Features {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			counts[f]++
		}
	}
	var common []string
	for f, n := range counts {
		if n == len(v.Rooms) {
			common = append(common, f)
		}
	}
	sort.Strings(common)
	return common
}

// IsClosed reports whether the venue is entirely unavailable on date
// (ISO date comparison, time-of-day ignored).
func (v *Venue) IsClosed(date time.Time) bool {
	iso := date.Format("2006-01-02")
	for _, d := range v.ClosedDates {
		if d == iso {
			return true
		}
	}
	if len(v.OpenWeekdays) == 0 {
		return false
	}
	wd := weekdayAbbrev(date.Weekday())
	for _, d := range v.OpenWeekdays {
		if d == wd {
			return false
		}
	}
	return true
}

func weekdayAbbrev(d time.Weekday) string {
	return [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}[d]
}
