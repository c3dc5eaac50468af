// Copyright 2025 Certen Protocol
//
// Job history — records every job the registry completes, surfaced back
// out through the gRPC Status method for audit.
// Grounded on repository_proof.go's CRUD shape (QueryRowContext-returning-
// generated-columns, $N placeholders), trimmed to the one table this
// service needs.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// JobRecord is one job's history entry.
type JobRecord struct {
	JobKey       string
	Program      string
	State        string
	RollupHeight sql.NullInt64
	ProofBytes   []byte
	ErrorDetail  sql.NullString
	ClaimedAt    time.Time
	CompletedAt  sql.NullTime
}

// JobHistoryRepository persists job lifecycle transitions.
type JobHistoryRepository struct {
	client *Client
}

// NewJobHistoryRepository wraps client for job-history operations.
func NewJobHistoryRepository(client *Client) *JobHistoryRepository {
	return &JobHistoryRepository{client: client}
}

// RecordClaimed inserts a new in-flight job row, or is a no-op if the key
// already exists (a restart replaying an in-flight claim).
func (r *JobHistoryRepository) RecordClaimed(ctx context.Context, jobKey, program string) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO job_history (job_key, program, state, claimed_at)
		VALUES ($1, $2, 'running', $3)
		ON CONFLICT (job_key) DO NOTHING`,
		jobKey, program, time.Now())
	if err != nil {
		return fmt.Errorf("record claimed job %s: %w", jobKey, err)
	}
	return nil
}

// RecordCompleted updates a job row to its terminal state.
func (r *JobHistoryRepository) RecordCompleted(ctx context.Context, jobKey string, succeeded bool, proofBytes []byte, errDetail string) error {
	state := "completed"
	if !succeeded {
		state = "failed"
	}
	_, err := r.client.ExecContext(ctx, `
		UPDATE job_history
		SET state = $2, proof_bytes = $3, error_detail = NULLIF($4, ''), completed_at = $5
		WHERE job_key = $1`,
		jobKey, state, proofBytes, errDetail, time.Now())
	if err != nil {
		return fmt.Errorf("record completed job %s: %w", jobKey, err)
	}
	return nil
}

// Get returns one job's history row.
func (r *JobHistoryRepository) Get(ctx context.Context, jobKey string) (*JobRecord, error) {
	row := r.client.QueryRowContext(ctx, `
		SELECT job_key, program, state, rollup_height, proof_bytes, error_detail, claimed_at, completed_at
		FROM job_history WHERE job_key = $1`, jobKey)

	rec := &JobRecord{}
	err := row.Scan(&rec.JobKey, &rec.Program, &rec.State, &rec.RollupHeight, &rec.ProofBytes, &rec.ErrorDetail, &rec.ClaimedAt, &rec.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobKey, err)
	}
	return rec, nil
}

// CountCompleted returns the number of jobs that have reached a terminal
// state, for the gRPC Status response's CompletedJobs field.
func (r *JobHistoryRepository) CountCompleted(ctx context.Context) (int, error) {
	var count int
	err := r.client.QueryRowContext(ctx, `
		SELECT count(*) FROM job_history WHERE state IN ('completed', 'failed')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count completed jobs: %w", err)
	}
	return count, nil
}

// RecentCompletions lists the most recently completed jobs, newest first,
// for audit and the gRPC Status response.
func (r *JobHistoryRepository) RecentCompletions(ctx context.Context, limit int) ([]JobRecord, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT job_key, program, state, rollup_height, proof_bytes, error_detail, claimed_at, completed_at
		FROM job_history
		WHERE completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent completions: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := rows.Scan(&rec.JobKey, &rec.Program, &rec.State, &rec.RollupHeight, &rec.ProofBytes, &rec.ErrorDetail, &rec.ClaimedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan job history row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
