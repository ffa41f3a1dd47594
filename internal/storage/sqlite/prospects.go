package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

// UpsertJobs writes postings keyed by URL in one transaction.
func (s *Store) UpsertJobs(ctx context.Context, jobs []prospect.JobPosting) error {
	if len(jobs) == 0 {
		return nil
	}
	now := formatTime(s.now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, j := range jobs {
			keywords, err := json.Marshal(nonNil(j.KeywordsMatched))
			if err != nil {
				return fmt.Errorf("marshal keywords: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
INSERT INTO job_postings (url, title, company, location, salary, description, source, keywords_matched, posted_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
  title = excluded.title,
  company = excluded.company,
  location = excluded.location,
  salary = COALESCE(excluded.salary, job_postings.salary),
  description = COALESCE(excluded.description, job_postings.description),
  keywords_matched = excluded.keywords_matched,
  posted_at = COALESCE(excluded.posted_at, job_postings.posted_at),
  updated_at = excluded.updated_at;`,
				j.URL, j.Title, j.Company, j.Location, j.Salary, j.Description, string(j.Source),
				string(keywords), formatTimePtr(j.PostedAt), now, now,
			)
			if err != nil {
				return fmt.Errorf("upsert job %s: %w", j.URL, err)
			}
		}
		return nil
	})
}

// UpsertBusinesses writes businesses keyed by (name, address) in one transaction.
func (s *Store) UpsertBusinesses(ctx context.Context, businesses []prospect.Business) error {
	if len(businesses) == 0 {
		return nil
	}
	now := formatTime(s.now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, b := range businesses {
			issues, err := json.Marshal(nonNil(b.WebsiteIssues))
			if err != nil {
				return fmt.Errorf("marshal issues: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
INSERT INTO businesses (identity_key, name, address, rating, review_count, category, maps_url, phone,
  website_url, has_website, website_score, website_issues, snapshot_uri, location_query, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(identity_key) DO UPDATE SET
  rating = excluded.rating,
  review_count = excluded.review_count,
  category = excluded.category,
  maps_url = excluded.maps_url,
  phone = excluded.phone,
  website_url = excluded.website_url,
  has_website = excluded.has_website,
  website_score = excluded.website_score,
  website_issues = excluded.website_issues,
  snapshot_uri = excluded.snapshot_uri,
  location_query = excluded.location_query,
  updated_at = excluded.updated_at;`,
				b.Key(), b.Name, b.Address, b.Rating, b.ReviewCount, b.Category, b.MapsURL, b.Phone,
				b.WebsiteURL, b.HasWebsite, b.WebsiteScore, string(issues), b.SnapshotURI, b.LocationQuery, now, now,
			)
			if err != nil {
				return fmt.Errorf("upsert business %q: %w", b.Name, err)
			}
		}
		return nil
	})
}

// ExistingJobURLs returns URLs first stored at or after since.
func (s *Store) ExistingJobURLs(ctx context.Context, since time.Time) ([]string, error) {
	return s.queryStrings(ctx, `SELECT url FROM job_postings WHERE created_at >= ?;`, formatTime(since))
}

// ExistingBusinessKeys returns the identity keys of stored businesses.
func (s *Store) ExistingBusinessKeys(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT identity_key FROM businesses;`)
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
