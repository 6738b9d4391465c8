package example

import (
	"strings"

	"github.com/slack-go/slack"
)

func markdownSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func fields(texts ...string) []*slack.TextBlockObject {
	out := make([]*slack.TextBlockObject, len(texts))
	for i, t := range texts {
		out[i] = slack.NewTextBlockObject(slack.MarkdownType, t, false, false)
	}
	return out
}

func goButton(text, actionID string) *slack.Accessory {
	return slack.NewAccessory(slack.NewButtonBlockElement(actionID, "go",
		slack.NewTextBlockObject(slack.PlainTextType, text, false, false)))
}

// homeView builds the App Home tab.
func homeView(title string) slack.HomeTabViewRequest {
	menu := slack.NewOptionsSelectBlockElement(slack.OptTypeExternal,
		slack.NewTextBlockObject(slack.PlainTextType, "Loading", false, false), "testMenu")

	return slack.HomeTabViewRequest{
		Type: slack.VTHomeTab,
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			markdownSection(title),
			slack.NewDividerBlock(),
			slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, "*Security Events*", false, false),
				fields("*New Alerts*\n20", "*Open Cases*\n5"),
				goButton("Go To Security Alerts", "gotoSecurityAlerts")),
			slack.NewDividerBlock(),
			slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, "*Service Tickets*", false, false),
				fields("*Total Tickets*\n23"),
				goButton("Go To Service Desk", "gotoServiceDesk")),
			slack.NewDividerBlock(),
			slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, "Test External Menu", false, false),
				nil, slack.NewAccessory(menu)),
		}},
	}
}

func securityMenu() slack.ModalViewRequest {
	return slack.ModalViewRequest{
		Type:  slack.VTModal,
		Title: slack.NewTextBlockObject(slack.PlainTextType, "Security Help Center", false, false),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, "*Travel Request*", false, false),
				nil,
				slack.NewAccessory(slack.NewButtonBlockElement("fileTravelRequest", "go",
					slack.NewTextBlockObject(slack.PlainTextType, "File new travel request", false, false)))),
			slack.NewDividerBlock(),
		}},
	}
}

var countries = []struct{ code, name string }{
	{"AR", "Argentina"},
	{"AU", "Australia"},
	{"BR", "Brazil"},
	{"CA", "Canada"},
	{"DE", "Germany"},
	{"EG", "Egypt"},
	{"ES", "Spain"},
	{"FR", "France"},
	{"GB", "United Kingdom"},
	{"IN", "India"},
	{"IT", "Italy"},
	{"JP", "Japan"},
	{"MX", "Mexico"},
	{"NL", "Netherlands"},
	{"US", "United States"},
}

// countryOptions returns the menu options whose name contains query,
// ignoring case.
func countryOptions(query string) []*slack.OptionBlockObject {
	query = strings.ToLower(query)
	out := []*slack.OptionBlockObject{}
	for _, c := range countries {
		if query != "" && !strings.Contains(strings.ToLower(c.name), query) {
			continue
		}
		out = append(out, slack.NewOptionBlockObject(c.code,
			slack.NewTextBlockObject(slack.PlainTextType, c.name, false, false), nil))
	}
	return out
}
