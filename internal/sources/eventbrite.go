package sources

import (
	"strings"

	"eventhub/internal/domain"
)

const EventbriteURL = "https://www.eventbrite.com.au/d/australia--sydney/events/"

func NewEventbrite(o Options) Adapter {
	return htmlSource{
		id:      Eventbrite,
		listing: o.listing(Eventbrite, EventbriteURL),
		city:    o.city(),
		loc:     o.loc(),
		fetcher: o.Fetcher,
		selectors: cardSelectors{
			Container:   `[data-testid='event-card'], .discover-search-desktop-card, .eds-event-card-content`,
			Title:       `h2, h3, [data-testid='event-card-title']`,
			Link:        `a`,
			When:        `time, [data-testid='event-card-date'], .eds-text-bs`,
			Venue:       `[data-testid='event-card-venue'], .card-text--where`,
			Description: `p, .eds-text-bs--fixed`,
			Image:       `img`,
			Category:    `[data-testid='event-card-category']`,
		},
		fromCard: eventbriteCard,
		fromLD:   func(s htmlSource, ld ldEvent) domain.NormalizedEvent { return s.ldBase(ld) },
	}
}

func eventbriteCard(s htmlSource, c card) domain.NormalizedEvent {
	ev := s.base(c.Title, c.Link)
	ev.StartTime = parseWhen(c.When, s.loc)
	if c.Venue != "" {
		ev.VenueName = strings.TrimSpace(strings.SplitN(c.Venue, ",", 2)[0])
		ev.VenueAddress = c.Venue
	}
	ev.Description = c.Description
	ev.ImageURL = c.Image
	ev.Category = c.Category
	if c.Category != "" {
		ev.Tags = []string{c.Category}
	}
	return ev
}
