package sources

import (
	"eventhub/internal/domain"
)

const TimeoutURL = "https://www.timeout.com/sydney/events"

const timeoutCategory = "Events"

func NewTimeout(o Options) Adapter {
	return htmlSource{
		id:      Timeout,
		listing: o.listing(Timeout, TimeoutURL),
		city:    o.city(),
		loc:     o.loc(),
		fetcher: o.Fetcher,
		selectors: cardSelectors{
			Container:   `article, .card, [class*='articleCard'], [class*='tile']`,
			Title:       `h2, h3, h4, [class*='title'], [class*='heading']`,
			Link:        `a[href]`,
			When:        `time, [class*='date'], [class*='when']`,
			Venue:       `[class*='venue'], [class*='location'], [class*='where']`,
			Description: `p, [class*='desc'], [class*='summary']`,
			Image:       `img`,
			Category:    `[class*='category'], [class*='tag'], [class*='label']`,
			MinTitle:    3,
		},
		fromCard: timeoutCard,
		fromLD: func(s htmlSource, ld ldEvent) domain.NormalizedEvent {
			ev := s.ldBase(ld)
			ev.Category = timeoutCategory
			ev.Tags = []string{timeoutCategory}
			return ev
		},
	}
}

func timeoutCard(s htmlSource, c card) domain.NormalizedEvent {
	ev := s.base(c.Title, c.Link)
	ev.StartTime = parseWhen(c.When, s.loc)
	ev.VenueName = c.Venue
	ev.VenueAddress = c.Venue
	ev.Description = c.Description
	ev.ImageURL = c.Image
	ev.Category = c.Category
	if ev.Category == "" {
		ev.Category = timeoutCategory
	}
	ev.Tags = []string{ev.Category}
	return ev
}
