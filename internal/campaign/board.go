package campaign

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applypilot/internal/history"
)

// Listing is one job on a search results page.
type Listing struct {
	Title string
	URL   string
}

// JobDetail is what the runner reads from a job page.
type JobDetail struct {
	Location    string
	Salary      string
	Description string
	// ApplyURL is the in-board application link, when the apply control is a link.
	ApplyURL string
	// ApplyButton locates a quick-apply button when there is no link.
	ApplyButton string
	External    bool
}

const (
	unknownLocation = "Unknown"
	hiddenSalary    = "Hidden"
)

var externalMarkers = []string{"situs", "site"}

// SearchURL builds the search page for keyword in location.
func SearchURL(base, keyword, location string) string {
	slug := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), "-"))
	}
	return fmt.Sprintf("%s/id/job-search/%s-jobs/in-%s/?where=%s",
		strings.TrimRight(base, "/"), slug(keyword), slug(location), url.PathEscape(location))
}

func innerText(n *html.Node) string {
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
}

// absolute resolves href against base.
func absolute(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// ParseListings returns the jobs on a search page in page order, de-duplicated by clean URL.
func ParseListings(doc *html.Node, base string) []Listing {
	var links []*html.Node
	for _, article := range htmlquery.Find(doc, `//article[@data-automation='normalJob']`) {
		link := htmlquery.FindOne(article, `.//a[@data-automation='jobTitle']`)
		if link == nil {
			link = htmlquery.FindOne(article, `.//a[contains(@href, '/job/')]`)
		}
		if link != nil {
			links = append(links, link)
		}
	}
	links = append(links, htmlquery.Find(doc, `//a[starts-with(@data-automation, 'recommendedJobLink_')]`)...)

	seen := make(map[string]bool)
	var out []Listing
	for _, link := range links {
		href := htmlquery.SelectAttr(link, "href")
		title := innerText(link)
		if href == "" || len(title) <= 3 {
			continue
		}
		u := absolute(base, href)
		key := history.CleanURL(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Listing{Title: title, URL: u})
	}
	return out
}

// NextPageURL returns the pagination link of a search page.
func NextPageURL(doc *html.Node, base string) (string, bool) {
	next := htmlquery.FindOne(doc, `//a[@data-automation='pagination-next']`)
	if next == nil {
		return "", false
	}
	href := htmlquery.SelectAttr(next, "href")
	if href == "" {
		return "", false
	}
	return absolute(base, href), true
}

// ParseJobDetail reads a job page.
func ParseJobDetail(doc *html.Node, base string) JobDetail {
	d := JobDetail{Location: unknownLocation, Salary: hiddenSalary}
	if t := innerText(htmlquery.FindOne(doc, `//*[@data-automation='job-detail-location']`)); t != "" {
		d.Location = t
	}
	if t := innerText(htmlquery.FindOne(doc, `//*[@data-automation='job-detail-salary']`)); t != "" {
		d.Salary = t
	}
	d.Description = innerText(htmlquery.FindOne(doc, `//div[@data-automation='jobAdDetails']`))

	if htmlquery.FindOne(doc, `//a[@data-automation='job-detail-apply-external']`) != nil {
		d.External = true
		return d
	}

	var control *html.Node
	if link := htmlquery.FindOne(doc, `//a[@data-automation='job-detail-apply']`); link != nil {
		control = link
		if href := htmlquery.SelectAttr(link, "href"); href != "" {
			d.ApplyURL = absolute(base, href)
		}
	} else {
		const quickApply = `//button[contains(normalize-space(.), 'Lamaran Cepat') or contains(normalize-space(.), 'Apply')]`
		if btn := htmlquery.FindOne(doc, quickApply); btn != nil {
			control = btn
			d.ApplyButton = quickApply
		}
	}

	text := strings.ToLower(innerText(control))
	for _, m := range externalMarkers {
		if strings.Contains(text, m) {
			d.External = true
		}
	}
	return d
}
