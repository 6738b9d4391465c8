package request

import "fmt"

// Category identifies the class of an inbound event.
type Category int

const (
	Send Category = iota + 1
	Response
	Callback
	Slash
	Events
	Interaction
	Menu
)

// Well-known event types routed under Events.
const (
	EventAppHomeOpened = "app_home_opened"
	EventMessage       = "message"
)

var categoryNames = map[Category]string{
	Send:        "SendMessage",
	Response:    "Response",
	Callback:    "Callback",
	Slash:       "Slash",
	Events:      "Events",
	Interaction: "Interaction",
	Menu:        "Menu",
}

// Categories lists every category in declaration order.
func Categories() []Category {
	return []Category{Send, Response, Callback, Slash, Events, Interaction, Menu}
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// BotScoped reports whether route names in this category are prefixed with
// the owning bot's name.
func (c Category) BotScoped() bool {
	switch c {
	case Send, Slash, Events, Interaction:
		return true
	}
	return false
}

// Verified reports whether requests in this category must carry a valid
// Slack signature before they reach a handler.
func (c Category) Verified() bool {
	switch c {
	case Slash, Events, Interaction, Menu:
		return true
	}
	return false
}

// ParseCategory resolves a category from its wire name.
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown route category %q", s)
}
