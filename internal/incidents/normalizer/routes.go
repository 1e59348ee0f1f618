package normalizer

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/signalshift-data/pkg/incidents/models"
)

var (
	betweenWord = regexp.MustCompile(`(?i)\bbetween\s+`)
	andWord     = regexp.MustCompile(`(?i)\s+and\s+`)
)

// ParseRoutes extracts origin/destination pairs from routes-affected markup.
//
// Each paragraph is split on commas and line breaks. Within a segment only the text after the
// last "between" is kept, and the text before the first "and" is the origin
// side while the text after the last "and" is the destination side. Sides with
// "/" alternatives collapse to the first alternative for the origin and the
// last for the destination. Segments without an "and" are skipped.
func ParseRoutes(markup string) []models.ServiceRoute {
	routes := []models.ServiceRoute{}
	for _, para := range paragraphs(markup) {
		for _, segment := range strings.Split(para, ",") {
			if route, ok := parseSegment(segment); ok {
				routes = append(routes, route)
			}
		}
	}
	return routes
}

// RouteText renders a route in the form ParseRoutes reads back
func RouteText(r models.ServiceRoute) string {
	return "Between " + r.Origin + " and " + r.Destination
}

func paragraphs(markup string) []string {
	if strings.TrimSpace(markup) == "" {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return []string{markup}
	}

	// line breaks and block items end a route just like a comma does
	doc.Find("br").ReplaceWithHtml(",")
	doc.Find("li, div, tr").AppendHtml(",")

	var out []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.Text())
	})
	if len(out) == 0 {
		out = append(out, doc.Text())
	}
	return out
}

func parseSegment(segment string) (models.ServiceRoute, bool) {
	text := collapseSpace(segment)

	if locs := betweenWord.FindAllStringIndex(text, -1); len(locs) > 0 {
		text = text[locs[len(locs)-1][1]:]
	}

	ands := andWord.FindAllStringIndex(text, -1)
	if len(ands) == 0 {
		return models.ServiceRoute{}, false
	}

	origin := firstAlternative(text[:ands[0][0]])
	destination := lastAlternative(text[ands[len(ands)-1][1]:])
	if origin == "" || destination == "" {
		return models.ServiceRoute{}, false
	}

	return models.ServiceRoute{Origin: origin, Destination: destination}, true
}

func firstAlternative(side string) string {
	for _, alt := range strings.Split(side, "/") {
		if alt = strings.TrimSpace(alt); alt != "" {
			return alt
		}
	}
	return ""
}

func lastAlternative(side string) string {
	alts := strings.Split(side, "/")
	for i := len(alts) - 1; i >= 0; i-- {
		if alt := strings.TrimSpace(alts[i]); alt != "" {
			return alt
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
