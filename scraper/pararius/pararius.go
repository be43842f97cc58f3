// Package pararius extracts for-sale listings from pararius.nl search pages.
package pararius

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"housing-scraper/models"
)

const (
	siteURL = "https://www.pararius.nl"
	// DefaultURLTemplate addresses a city's for-sale search results.
	DefaultURLTemplate = siteURL + "/koopwoningen/{city}/page-{page}"

	containerSelector = "ul.search-list"
	itemSelector      = "li.search-list__item--listing"
)

// ErrNoResultList is returned for a page that has no search result list at
// all, as opposed to a list with zero listings.
var ErrNoResultList = errors.New("pararius: search result list not found")

// Source implements the pararius.nl page layout.
type Source struct {
	template string
}

// New returns a Source using DefaultURLTemplate.
func New() *Source {
	return &Source{template: DefaultURLTemplate}
}

func (s *Source) Name() string {
	return "pararius"
}

// PageURL builds the URL of a 1-based results page. A city's own BaseURL,
// when set, overrides the default template.
func (s *Source) PageURL(city models.City, page int) string {
	tmpl := s.template
	if city.BaseURL != "" {
		tmpl = city.BaseURL
	}
	return strings.NewReplacer(
		"{city}", url.PathEscape(city.Slug()),
		"{page}", strconv.Itoa(page),
	).Replace(tmpl)
}

// ExtractEntries returns one RawEntry per listing item on the page.
func (s *Source) ExtractEntries(body []byte) ([]models.RawEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pararius: parse html: %w", err)
	}

	list := doc.Find(containerSelector)
	if list.Length() == 0 {
		return nil, ErrNoResultList
	}

	entries := make([]models.RawEntry, 0)
	list.Find(itemSelector).Each(func(_ int, item *goquery.Selection) {
		entries = append(entries, extractEntry(item))
	})
	return entries, nil
}

func extractEntry(item *goquery.Selection) models.RawEntry {
	entry := models.RawEntry{}

	link := item.Find("h2 a").First()
	address := text(link)
	entry[models.FieldAddress] = address
	if strings.HasPrefix(address, "Project:") {
		entry[models.FieldProject] = "true"
	}

	if href, ok := link.Attr("href"); ok && href != "" {
		entry[models.FieldURL] = absolute(href)
		entry[models.FieldID] = listingID(href)
	}

	entry[models.FieldLabel] = text(item.Find(".listing-search-item__label").First())
	entry[models.FieldSubtitle] = text(item.Find(".listing-search-item__sub-title").First())
	entry[models.FieldPrice] = text(item.Find(".listing-search-item__price").First())
	entry[models.FieldAgent] = text(item.Find(".listing-search-item__info").First())

	extractFeatures(item.Find("ul.illustrated-features li"), entry)
	return entry
}

// extractFeatures reads size, rooms and construction year. Items are matched
// on their modifier class; unclassed items fall back to position.
func extractFeatures(items *goquery.Selection, entry models.RawEntry) {
	positional := []string{models.FieldSize, models.FieldRooms, models.FieldYear}

	items.Each(func(i int, li *goquery.Selection) {
		value := text(li)
		switch {
		case li.HasClass("illustrated-features__item--surface-area"):
			entry[models.FieldSize] = value
		case li.HasClass("illustrated-features__item--number-of-rooms"):
			entry[models.FieldRooms] = value
		case li.HasClass("illustrated-features__item--construction-period"):
			entry[models.FieldYear] = value
		case i < len(positional):
			if _, set := entry[positional[i]]; !set {
				entry[positional[i]] = value
			}
		}
	})
}

// listingID takes the third path segment of a listing link, e.g.
// "/huis-te-koop/amsterdam/1a2b3c4d/kerkstraat" → "1a2b3c4d".
func listingID(href string) string {
	path := href
	if u, err := url.Parse(href); err == nil {
		path = u.Path
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) >= 3 && segments[2] != "" {
		return segments[2]
	}
	return strings.Trim(path, "/")
}

func absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return siteURL + "/" + strings.TrimPrefix(href, "/")
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
