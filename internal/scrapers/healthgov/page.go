package healthgov

import (
	"covid19au/internal/snapshot"
	"covid19au/lib/htmlutil"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrNoGraphIDs        = errors.New("page lists no dashboard objects")
	ErrNoPublicationDate = errors.New("page has no publication date")
)

var graphIDRegex = regexp.MustCompile(`\{"qlik_components":(\[(\{"component_id":"\w{1,10}"\},?)*\])`)

// GraphIDs returns the ids of the dashboard objects embedded in the page,
// in page order.
func GraphIDs(page []byte) ([]string, error) {
	groups := graphIDRegex.FindSubmatch(page)
	if len(groups) < 2 {
		return nil, ErrNoGraphIDs
	}
	var components []struct {
		ComponentID string `json:"component_id"`
	}
	err := json.Unmarshal(groups[1], &components)
	if err != nil {
		return nil, fmt.Errorf("decode dashboard objects: %w", err)
	}
	if len(components) == 0 {
		return nil, ErrNoGraphIDs
	}
	ids := make([]string, len(components))
	for i, c := range components {
		ids[i] = c.ComponentID
	}
	return ids, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2 January 2006",
	"Monday 2 January 2006",
	"Monday, 2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

var looseDateRegex = regexp.MustCompile(`\d{1,2} [A-Z][a-z]+ \d{4}`)

func parseDate(s string, loc *time.Location) (snapshot.Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return snapshot.Date{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return snapshot.DateOf(t, loc), true
		}
	}
	match := looseDateRegex.FindString(s)
	if match != "" && match != s {
		return parseDate(match, loc)
	}
	return snapshot.Date{}, false
}

// PublicationDate reads the date the figures on the page were published,
// the machine readable content attribute is preferred over the text.
func PublicationDate(doc *goquery.Document, loc *time.Location) (snapshot.Date, error) {
	var date snapshot.Date
	found := false
	doc.Find(".date-display-single").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		content, ok := sel.Attr("content")
		if ok {
			date, found = parseDate(content, loc)
			if found {
				return false
			}
		}
		if len(sel.Nodes) > 0 {
			date, found = parseDate(htmlutil.GetCleanText(sel.Nodes[0]), loc)
		}
		return !found
	})
	if !found {
		return snapshot.Date{}, ErrNoPublicationDate
	}
	return date, nil
}
