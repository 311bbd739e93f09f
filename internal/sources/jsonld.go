package sources

import (
	"encoding/json"
	"strings"
)

// ldEvent is the subset of a schema.org Event read from JSON-LD blocks.
type ldEvent struct {
	Type        json.RawMessage `json:"@type"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	StartDate   string          `json:"startDate"`
	EndDate     string          `json:"endDate"`
	Description string          `json:"description"`
	Image       json.RawMessage `json:"image"`
	Location    json.RawMessage `json:"location"`
}

// parseJSONLD extracts named Event items from one ld+json script body. Bad
// JSON yields nothing.
func parseJSONLD(body string) []ldEvent {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil
	}
	var out []ldEvent
	for _, item := range flattenLD(raw) {
		var ev ldEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			continue
		}
		if ev.isEvent() && strings.TrimSpace(ev.Name) != "" {
			out = append(out, ev)
		}
	}
	return out
}

func flattenLD(raw json.RawMessage) []json.RawMessage {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var out []json.RawMessage
		for _, item := range list {
			out = append(out, flattenLD(item)...)
		}
		return out
	}
	var graph struct {
		Graph []json.RawMessage `json:"@graph"`
	}
	if err := json.Unmarshal(raw, &graph); err == nil && len(graph.Graph) > 0 {
		return graph.Graph
	}
	return []json.RawMessage{raw}
}

func (e ldEvent) isEvent() bool {
	var single string
	if err := json.Unmarshal(e.Type, &single); err == nil {
		return single == "Event"
	}
	var many []string
	if err := json.Unmarshal(e.Type, &many); err == nil {
		for _, t := range many {
			if t == "Event" {
				return true
			}
		}
	}
	return false
}

// image returns the first image URL whether the field is a string, a list or
// an ImageObject.
func (e ldEvent) image() string {
	return firstURL(e.Image)
}

func firstURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if u := firstURL(item); u != "" {
				return u
			}
		}
		return ""
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.URL
	}
	return ""
}

// venue returns the location name and street address.
func (e ldEvent) venue() (name, address string) {
	if len(e.Location) == 0 {
		return "", ""
	}
	var list []json.RawMessage
	if err := json.Unmarshal(e.Location, &list); err == nil {
		if len(list) == 0 {
			return "", ""
		}
		return ldEvent{Location: list[0]}.venue()
	}
	var place struct {
		Name    string          `json:"name"`
		Address json.RawMessage `json:"address"`
	}
	if err := json.Unmarshal(e.Location, &place); err != nil {
		var s string
		if json.Unmarshal(e.Location, &s) == nil {
			return s, ""
		}
		return "", ""
	}
	if len(place.Address) > 0 {
		var street string
		if err := json.Unmarshal(place.Address, &street); err == nil {
			return place.Name, street
		}
		var postal struct {
			StreetAddress string `json:"streetAddress"`
		}
		if err := json.Unmarshal(place.Address, &postal); err == nil {
			return place.Name, postal.StreetAddress
		}
	}
	return place.Name, ""
}
