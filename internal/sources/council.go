package sources

import (
	"eventhub/internal/domain"
)

const CouncilURL = "https://www.cityofsydney.nsw.gov.au/events"

const councilCategory = "Community"

func NewCouncil(o Options) Adapter {
	return htmlSource{
		id:      Council,
		listing: o.listing(Council, CouncilURL),
		city:    o.city(),
		loc:     o.loc(),
		fetcher: o.Fetcher,
		selectors: cardSelectors{
			Container:   `article, .event-card, [class*="event-item"], .listing-item, [class*="card"]`,
			Title:       `h2, h3, h4`,
			Link:        `a[href]`,
			When:        `time, [class*='date']`,
			Venue:       `[class*='venue'], [class*='location']`,
			Description: `p`,
			Image:       `img`,
			MinTitle:    3,
		},
		fromCard: councilCard,
		fromLD: func(s htmlSource, ld ldEvent) domain.NormalizedEvent {
			ev := s.ldBase(ld)
			ev.Category = councilCategory
			ev.Tags = []string{councilCategory}
			return ev
		},
	}
}

func councilCard(s htmlSource, c card) domain.NormalizedEvent {
	ev := s.base(c.Title, c.Link)
	ev.StartTime = parseWhen(c.When, s.loc)
	ev.VenueName = c.Venue
	if c.Venue != "" {
		ev.VenueAddress = c.Venue + ", Sydney NSW"
	}
	ev.Description = c.Description
	ev.ImageURL = c.Image
	ev.Category = councilCategory
	ev.Tags = []string{councilCategory, "Council"}
	return ev
}
