package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

const upsertJobSQL = `
INSERT INTO job_postings (
	url,
	title,
	company,
	location,
	salary,
	description,
	source,
	keywords_matched,
	posted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	company = EXCLUDED.company,
	location = EXCLUDED.location,
	salary = COALESCE(EXCLUDED.salary, job_postings.salary),
	description = COALESCE(EXCLUDED.description, job_postings.description),
	keywords_matched = EXCLUDED.keywords_matched,
	posted_at = COALESCE(EXCLUDED.posted_at, job_postings.posted_at),
	updated_at = now()`

const upsertBusinessSQL = `
INSERT INTO businesses (
	identity_key,
	name,
	address,
	rating,
	review_count,
	category,
	maps_url,
	phone,
	website_url,
	has_website,
	website_score,
	website_issues,
	snapshot_uri,
	location_query
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (identity_key) DO UPDATE SET
	rating = EXCLUDED.rating,
	review_count = EXCLUDED.review_count,
	category = EXCLUDED.category,
	maps_url = EXCLUDED.maps_url,
	phone = EXCLUDED.phone,
	website_url = EXCLUDED.website_url,
	has_website = EXCLUDED.has_website,
	website_score = EXCLUDED.website_score,
	website_issues = EXCLUDED.website_issues,
	snapshot_uri = EXCLUDED.snapshot_uri,
	location_query = EXCLUDED.location_query,
	updated_at = now()`

// UpsertJobs writes postings keyed by URL in one transaction.
func (s *Store) UpsertJobs(ctx context.Context, jobs []prospect.JobPosting) error {
	if len(jobs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, job := range jobs {
			args, err := jobArgs(job)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, upsertJobSQL, args...); err != nil {
				return fmt.Errorf("upsert job %s: %w", job.URL, err)
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
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, b := range businesses {
			args, err := businessArgs(b)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, upsertBusinessSQL, args...); err != nil {
				return fmt.Errorf("upsert business %q: %w", b.Name, err)
			}
		}
		return nil
	})
}

// ExistingJobURLs returns URLs first stored at or after since.
func (s *Store) ExistingJobURLs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT url FROM job_postings WHERE created_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("query job urls: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// ExistingBusinessKeys returns the identity keys of stored businesses.
func (s *Store) ExistingBusinessKeys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT identity_key FROM businesses`)
	if err != nil {
		return nil, fmt.Errorf("query business keys: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func jobArgs(job prospect.JobPosting) ([]any, error) {
	keywords, err := json.Marshal(nonNil(job.KeywordsMatched))
	if err != nil {
		return nil, fmt.Errorf("marshal keywords: %w", err)
	}
	return []any{
		job.URL,
		job.Title,
		job.Company,
		job.Location,
		job.Salary,
		job.Description,
		string(job.Source),
		keywords,
		job.PostedAt,
	}, nil
}

func businessArgs(b prospect.Business) ([]any, error) {
	issues, err := json.Marshal(nonNil(b.WebsiteIssues))
	if err != nil {
		return nil, fmt.Errorf("marshal issues: %w", err)
	}
	return []any{
		b.Key(),
		b.Name,
		b.Address,
		b.Rating,
		b.ReviewCount,
		b.Category,
		b.MapsURL,
		b.Phone,
		b.WebsiteURL,
		b.HasWebsite,
		b.WebsiteScore,
		issues,
		b.SnapshotURI,
		b.LocationQuery,
	}, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
