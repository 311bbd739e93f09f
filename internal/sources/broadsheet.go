package sources

import (
	"eventhub/internal/domain"
)

const BroadsheetURL = "https://www.broadsheet.com.au/sydney/events"

const broadsheetCategory = "Culture"

func NewBroadsheet(o Options) Adapter {
	return htmlSource{
		id:      Broadsheet,
		listing: o.listing(Broadsheet, BroadsheetURL),
		city:    o.city(),
		loc:     o.loc(),
		fetcher: o.Fetcher,
		selectors: cardSelectors{
			Container:   `article, [class*='event-card'], [class*='listing']`,
			Title:       `h2, h3, [class*='title']`,
			Link:        `a[href]`,
			When:        `time, [class*='date']`,
			Venue:       `[class*='venue'], [class*='address']`,
			Description: `p, [class*='excerpt']`,
			Image:       `img`,
			Category:    `[class*='category'], [class*='kicker']`,
			MinTitle:    3,
		},
		fromCard: broadsheetCard,
		fromLD: func(s htmlSource, ld ldEvent) domain.NormalizedEvent {
			ev := s.ldBase(ld)
			ev.Category = broadsheetCategory
			ev.Tags = []string{broadsheetCategory}
			return ev
		},
	}
}

func broadsheetCard(s htmlSource, c card) domain.NormalizedEvent {
	ev := s.base(c.Title, c.Link)
	ev.StartTime = parseWhen(c.When, s.loc)
	ev.VenueName = c.Venue
	ev.VenueAddress = c.Venue
	ev.Description = c.Description
	ev.ImageURL = c.Image
	ev.Category = c.Category
	if ev.Category == "" {
		ev.Category = broadsheetCategory
	}
	ev.Tags = []string{ev.Category}
	return ev
}
