// Package prospect defines the records surfaced by discovery runs and the
// configuration accepted by the two discovery entry points.
package prospect

import (
	"strings"
	"time"
)

// Platform identifies a job board adapter.
type Platform string

// Supported job platforms.
const (
	LinkedIn Platform = "linkedin"
	Indeed   Platform = "indeed"
	ICTJob   Platform = "ictjob"
	Jobat    Platform = "jobat"
	Actiris  Platform = "actiris"
	Jobsora  Platform = "jobsora"
)

// Platforms lists every supported platform in canonical order.
func Platforms() []Platform {
	return []Platform{LinkedIn, Indeed, ICTJob, Jobat, Actiris, Jobsora}
}

// ParsePlatform maps user input onto a known Platform.
func ParsePlatform(raw string) (Platform, bool) {
	candidate := Platform(strings.ToLower(strings.TrimSpace(raw)))
	for _, p := range Platforms() {
		if p == candidate {
			return p, true
		}
	}
	return "", false
}

// Business is a local business discovered through the map-search crawl.
type Business struct {
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Rating        *float64 `json:"rating,omitempty"`
	ReviewCount   *int     `json:"review_count,omitempty"`
	Category      string   `json:"category,omitempty"`
	MapsURL       string   `json:"maps_url,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	WebsiteURL    *string  `json:"website_url,omitempty"`
	HasWebsite    bool     `json:"has_website"`
	WebsiteScore  *int     `json:"website_score,omitempty"`
	WebsiteIssues []string `json:"website_issues,omitempty"`
	SnapshotURI   string   `json:"snapshot_uri,omitempty"`
	LocationQuery string   `json:"location_query"`
}

// Key returns the case-insensitive (name, address) identity.
func (b Business) Key() string {
	return BusinessKey(b.Name, b.Address)
}

// Reviews returns the review count, treating unknown as zero.
func (b Business) Reviews() int {
	if b.ReviewCount == nil {
		return 0
	}
	return *b.ReviewCount
}

// SetWebsite keeps HasWebsite consistent with WebsiteURL.
func (b *Business) SetWebsite(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		b.WebsiteURL = nil
		b.HasWebsite = false
		return
	}
	b.WebsiteURL = &raw
	b.HasWebsite = true
}

// Website returns the website URL or an empty string.
func (b Business) Website() string {
	if b.WebsiteURL == nil {
		return ""
	}
	return *b.WebsiteURL
}

// BusinessKey normalizes a (name, address) pair into a dedup key.
func BusinessKey(name, address string) string {
	return normalizeIdentity(name) + "|" + normalizeIdentity(address)
}

func normalizeIdentity(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// BusinessRef names a business already known to the caller.
type BusinessRef struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// JobPosting is a job offer scraped from one of the platforms. URL holds the
// canonical form and is the posting's identity.
type JobPosting struct {
	Title           string     `json:"title"`
	Company         string     `json:"company"`
	Location        string     `json:"location"`
	Salary          *string    `json:"salary,omitempty"`
	Description     *string    `json:"description,omitempty"`
	URL             string     `json:"url"`
	Source          Platform   `json:"source"`
	KeywordsMatched []string   `json:"keywords_matched"`
	PostedAt        *time.Time `json:"posted_at,omitempty"`
}

// Valid reports whether the posting carries the minimum fields to persist.
func (j JobPosting) Valid() bool {
	return strings.TrimSpace(j.Title) != "" && strings.TrimSpace(j.URL) != ""
}

// HasDescription reports whether a non-blank description is present.
func (j JobPosting) HasDescription() bool {
	return j.Description != nil && strings.TrimSpace(*j.Description) != ""
}
