package platform

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

const defaultLocation = "Belgique"

func locationOr(loc, fallback string) string {
	if strings.TrimSpace(loc) == "" {
		return fallback
	}
	return strings.TrimSpace(loc)
}

// LinkedIn's guest endpoint returns bare <li> cards, 25 per page.
var linkedInSite = site{
	id:   prospect.LinkedIn,
	base: "https://www.linkedin.com",
	search: func(keyword, location string, page int) string {
		return searchURL("https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search", url.Values{
			"keywords": {keyword},
			"location": {locationOr(location, "Belgium")},
			"f_TPR":    {"r2592000"},
			"start":    {strconv.Itoa(page * 25)},
		})
	},
	cards: cardSpec{
		card:       "li",
		title:      ".base-search-card__title",
		link:       "a.base-card__full-link",
		company:    ".base-search-card__subtitle",
		location:   ".job-search-card__location",
		salary:     ".job-search-card__salary-info",
		posted:     "time",
		postedAttr: "datetime",
	},
	canonical: canonicalLinkedIn,
}

// canonicalLinkedIn drops tracking params and folds regional hosts
// (be.linkedin.com, fr.linkedin.com) onto www.
func canonicalLinkedIn(raw string) string {
	out := canonicalize(raw)
	if out == "" {
		return ""
	}
	u, err := url.Parse(out)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, ".linkedin.com") {
		u.Host = "www.linkedin.com"
	}
	return u.String()
}

var indeedSite = site{
	id:   prospect.Indeed,
	base: "https://be.indeed.com",
	search: func(keyword, location string, page int) string {
		return searchURL("https://be.indeed.com/jobs", url.Values{
			"q":       {keyword},
			"l":       {locationOr(location, defaultLocation)},
			"fromage": {"14"},
			"start":   {strconv.Itoa(page * 10)},
		})
	},
	cards: cardSpec{
		card:      "div.job_seen_beacon, li div.cardOutline",
		title:     "h2.jobTitle span[title], h2.jobTitle",
		titleAttr: "title",
		link:      "h2.jobTitle a",
		company:   "[data-testid='company-name'], .companyName",
		location:  "[data-testid='text-location'], .companyLocation",
		salary:    "[data-testid='attribute_snippet_testid'].salary-snippet-container, .salary-snippet-container",
		posted:    "[data-testid='myJobsStateDate'], span.date",
	},
	canonical: canonicalIndeed,
}

// canonicalIndeed rewrites click-tracking links onto /viewjob keyed by jk.
func canonicalIndeed(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	if jk := u.Query().Get("jk"); jk != "" {
		return "https://" + strings.ToLower(u.Host) + "/viewjob?jk=" + url.QueryEscape(jk)
	}
	return canonicalize(raw)
}

var ictJobSite = site{
	id:   prospect.ICTJob,
	base: "https://www.ictjob.be",
	search: func(keyword, location string, page int) string {
		params := url.Values{"keywords": {keyword}}
		if loc := strings.TrimSpace(location); loc != "" {
			params.Set("location", loc)
		}
		if page > 0 {
			params.Set("page", strconv.Itoa(page+1))
		}
		return searchURL("https://www.ictjob.be/fr/chercher-emplois-it", params)
	},
	cards: cardSpec{
		card:     "li.search-item, .job-info",
		title:    "h2.job-title, .job-title",
		link:     "a.job-title, a.search-item-link, a",
		company:  ".job-company",
		location: ".job-location",
		posted:   ".job-date",
	},
	canonical: func(raw string) string { return canonicalize(raw) },
}

var jobatSite = site{
	id:   prospect.Jobat,
	base: "https://www.jobat.be",
	search: func(keyword, location string, page int) string {
		params := url.Values{"keyword": {keyword}}
		if loc := strings.TrimSpace(location); loc != "" {
			params.Set("location", loc)
		}
		if page > 0 {
			params.Set("page", strconv.Itoa(page+1))
		}
		return searchURL("https://www.jobat.be/fr/emplois/resultats", params)
	},
	cards: cardSpec{
		card:     ".jobCard, li.jobResults-card",
		title:    ".jobCard-title",
		link:     "a.jobCard-link, .jobCard-title a, a",
		company:  ".jobCard-company",
		location: ".jobCard-location",
		salary:   ".jobCard-salary",
		posted:   ".jobCard-date, time",
	},
	canonical: func(raw string) string { return canonicalize(raw) },
}

var jobsoraSite = site{
	id:   prospect.Jobsora,
	base: "https://be.jobsora.com",
	search: func(keyword, location string, page int) string {
		params := url.Values{
			"query":    {keyword},
			"location": {locationOr(location, defaultLocation)},
		}
		if page > 0 {
			params.Set("page", strconv.Itoa(page+1))
		}
		return searchURL("https://be.jobsora.com/emplois", params)
	},
	cards: cardSpec{
		card:     ".c-job-item",
		title:    ".c-job-item__title",
		link:     "a.c-job-item__title-link, .c-job-item__title a, a",
		company:  ".c-job-item__company",
		location: ".c-job-item__info-item--location",
		salary:   ".c-job-item__salary",
		posted:   ".c-job-item__date",
	},
	canonical: func(raw string) string { return canonicalize(raw) },
}

var descriptionSelectors = map[prospect.Platform][]string{
	prospect.LinkedIn: {".show-more-less-html__markup", ".description__text", ".jobs-description__content"},
	prospect.Indeed:   {"#jobDescriptionText", ".jobsearch-jobDescriptionText"},
	prospect.ICTJob:   {"#job-description", ".job-description", "[itemprop='description']"},
	prospect.Jobat:    {".jobCard-description", ".jobDetail-description", ".job-description"},
	prospect.Actiris:  {".offer-description", ".detail-offre", "#offre-description"},
	prospect.Jobsora:  {".c-job-description", ".job-description__text", ".vacancy-description"},
}

// DescriptionSelectors returns the detail-page selectors tried first when
// enriching a posting from p.
func DescriptionSelectors(p prospect.Platform) []string {
	return append([]string(nil), descriptionSelectors[p]...)
}
