package sources

import (
	"context"
	"time"

	"eventhub/internal/domain"
)

const SeedURL = "eventhub://seed"

type seedItem struct {
	slug        string
	title       string
	day         int
	hour        int
	minute      int
	duration    time.Duration
	venue       string
	address     string
	description string
	category    string
	tags        []string
}

var seedCatalog = []seedItem{
	{"harbour-jazz-night", "Harbour Jazz Night", 1, 19, 30, 3 * time.Hour, "Sydney Opera House", "Bennelong Point, Sydney NSW 2000",
		"An evening of contemporary jazz on the forecourt with the harbour as backdrop.", "Music", []string{"Music", "Jazz"}},
	{"rocks-weekend-market", "The Rocks Weekend Market", 5, 10, 0, 7 * time.Hour, "The Rocks", "George St, The Rocks NSW 2000",
		"Local makers, designers and street food under the Harbour Bridge.", "Markets", []string{"Markets", "Food"}},
	{"carriageworks-farmers-market", "Carriageworks Farmers Market", 5, 8, 0, 5 * time.Hour, "Carriageworks", "245 Wilson St, Eveleigh NSW 2015",
		"Seasonal produce from more than seventy growers across New South Wales.", "Food & Drink", []string{"Food", "Markets"}},
	{"art-gallery-late", "Art Gallery Late", 2, 17, 0, 5 * time.Hour, "Art Gallery of New South Wales", "Art Gallery Rd, Sydney NSW 2000",
		"After-hours access to the collection with talks, live music and a bar.", "Arts", []string{"Arts", "Nightlife"}},
	{"bondi-coastal-walk", "Bondi to Coogee Sunrise Walk", 6, 6, 0, 2 * time.Hour, "Bondi Beach", "Queen Elizabeth Dr, Bondi Beach NSW 2026",
		"A guided walk along the coastal path finishing with coffee at Coogee.", "Outdoors", []string{"Outdoors", "Fitness"}},
	{"comedy-store-showcase", "Comedy Store Showcase", 4, 20, 0, 2 * time.Hour, "The Comedy Store", "Entertainment Quarter, Moore Park NSW 2021",
		"Five rising stand-up comics in one night.", "Comedy", []string{"Comedy"}},
	{"darling-harbour-fireworks", "Darling Harbour Fireworks", 5, 21, 0, 30 * time.Minute, "Darling Harbour", "Darling Harbour, Sydney NSW 2000",
		"Saturday night fireworks over Cockle Bay.", "Festivals", []string{"Festivals", "Family"}},
	{"startup-founders-meetup", "Sydney Startup Founders Meetup", 3, 18, 0, 2 * time.Hour, "Stone & Chalk", "Tech Central, Haymarket NSW 2000",
		"Lightning talks and networking for early-stage founders.", "Business", []string{"Business", "Networking"}},
}

type seedSource struct {
	city string
	loc  *time.Location
	now  func() time.Time
}

// NewSeed returns the built-in curated source used to bootstrap an empty catalog.
// Dates are anchored to the start of the current week so re-runs within a week
// produce identical records.
func NewSeed(o Options) Adapter {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	return seedSource{city: o.city(), loc: o.loc(), now: now}
}

func (s seedSource) ID() ID       { return Seed }
func (s seedSource) Name() string { return Seed.DisplayName() }

func (s seedSource) Fetch(ctx context.Context) ([]domain.NormalizedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	week := weekStart(s.now().In(s.loc))
	out := make([]domain.NormalizedEvent, 0, len(seedCatalog))
	for _, item := range seedCatalog {
		start := week.AddDate(0, 0, item.day).Add(time.Duration(item.hour)*time.Hour + time.Duration(item.minute)*time.Minute)
		end := start.Add(item.duration)
		out = append(out, domain.NormalizedEvent{
			Title:            item.title,
			StartTime:        &start,
			EndTime:          &end,
			VenueName:        item.venue,
			VenueAddress:     item.address,
			City:             s.city,
			Description:      item.description,
			Category:         item.category,
			Tags:             append([]string(nil), item.tags...),
			SourceName:       s.Name(),
			SourceURL:        SeedURL,
			OriginalEventURL: SeedURL + "/" + item.slug,
		})
	}
	return out, nil
}

// weekStart returns midnight on the Monday of t's week in t's zone.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}
