package sources

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"eventhub/internal/domain"
)

// card holds the raw text pulled from one listing card.
type card struct {
	Title       string
	Link        string
	When        string
	Venue       string
	Description string
	Image       string
	Category    string
}

type cardSelectors struct {
	Container   string
	Title       string
	Link        string
	When        string
	Venue       string
	Description string
	Image       string
	Category    string
	MinTitle    int
}

// htmlSource scrapes a listing page card by card and then falls back to
// JSON-LD Event blocks for anything the cards missed.
type htmlSource struct {
	id        ID
	listing   string
	city      string
	loc       *time.Location
	fetcher   Fetcher
	selectors cardSelectors
	fromCard  func(s htmlSource, c card) domain.NormalizedEvent
	fromLD    func(s htmlSource, ld ldEvent) domain.NormalizedEvent
}

func (s htmlSource) ID() ID       { return s.id }
func (s htmlSource) Name() string { return s.id.DisplayName() }

func (s htmlSource) Fetch(ctx context.Context) ([]domain.NormalizedEvent, error) {
	c := s.fetcher.collector(ctx)
	var out []domain.NormalizedEvent
	seen := map[string]bool{}

	c.OnHTML(s.selectors.Container, func(e *colly.HTMLElement) {
		cd, ok := s.extract(e)
		if !ok || seen[cd.Link] {
			return
		}
		seen[cd.Link] = true
		out = append(out, s.fromCard(s, cd))
	})
	c.OnHTML(`script[type="application/ld+json"]`, func(e *colly.HTMLElement) {
		for _, ld := range parseJSONLD(e.Text) {
			if ld.URL == "" {
				continue
			}
			ld.URL = e.Request.AbsoluteURL(ld.URL)
			if ld.URL == "" || seen[ld.URL] {
				continue
			}
			seen[ld.URL] = true
			out = append(out, s.fromLD(s, ld))
		}
	})

	if err := c.Visit(s.listing); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.listing, err)
	}
	c.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s htmlSource) extract(e *colly.HTMLElement) (card, bool) {
	sel := s.selectors
	dom := e.DOM
	title := firstText(dom, sel.Title)
	if title == "" || utf8.RuneCountInString(title) < sel.MinTitle {
		return card{}, false
	}
	href, _ := dom.Find(sel.Link).First().Attr("href")
	if strings.TrimSpace(href) == "" {
		return card{}, false
	}
	link := e.Request.AbsoluteURL(strings.TrimSpace(href))
	if link == "" || s.isListingLink(link) {
		return card{}, false
	}
	c := card{
		Title:       title,
		Link:        link,
		Venue:       firstText(dom, sel.Venue),
		Description: firstText(dom, sel.Description),
		Category:    firstText(dom, sel.Category),
	}
	if sel.When != "" {
		w := dom.Find(sel.When).First()
		if dt, ok := w.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
			c.When = strings.TrimSpace(dt)
		} else {
			c.When = clean(w.Text())
		}
	}
	if sel.Image != "" {
		img := dom.Find(sel.Image).First()
		for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
			if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
				c.Image = e.Request.AbsoluteURL(strings.TrimSpace(v))
				break
			}
		}
	}
	return c, true
}

// isListingLink drops cards that point back at an index page.
func (s htmlSource) isListingLink(link string) bool {
	trimmed := strings.TrimSuffix(link, "/")
	return trimmed == strings.TrimSuffix(s.listing, "/") || strings.HasSuffix(trimmed, "/events")
}

// base fills the fields every adapter sets the same way.
func (s htmlSource) base(title, link string) domain.NormalizedEvent {
	return domain.NormalizedEvent{
		Title:            title,
		City:             s.city,
		SourceName:       s.Name(),
		SourceURL:        s.listing,
		OriginalEventURL: link,
	}
}

// ldBase maps the common JSON-LD fields.
func (s htmlSource) ldBase(ld ldEvent) domain.NormalizedEvent {
	ev := s.base(clean(ld.Name), ld.URL)
	ev.StartTime = parseWhen(ld.StartDate, s.loc)
	ev.EndTime = parseWhen(ld.EndDate, s.loc)
	ev.VenueName, ev.VenueAddress = ld.venue()
	ev.Description = clean(ld.Description)
	ev.ImageURL = ld.image()
	return ev
}

func firstText(dom *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return clean(dom.Find(selector).First().Text())
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
