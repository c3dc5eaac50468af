// Copyright 2025 Certen Protocol
//
// Unit tests for JobHistoryRepository. Uses a test database or skips.

package database

import (
	"context"
	"os"
	"testing"

	_ "github.com/lib/pq" // PostgreSQL driver
)

var testClient *Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("CERTEN_TEST_DB")
	if connStr == "" {
		os.Exit(0)
	}

	var err error
	testClient, err = NewClient(Params{URL: connStr})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	if err := testClient.MigrateUp(context.Background()); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}

	os.Exit(m.Run())
}

func TestJobHistoryRepository_ClaimCompleteRoundTrip(t *testing.T) {
	repo := NewJobHistoryRepository(testClient)
	ctx := context.Background()

	key := "message-inclusion/deadbeef"
	if err := repo.RecordClaimed(ctx, key, "message-inclusion"); err != nil {
		t.Fatalf("RecordClaimed: %v", err)
	}
	if err := repo.RecordCompleted(ctx, key, true, []byte{0x01, 0x02}, ""); err != nil {
		t.Fatalf("RecordCompleted: %v", err)
	}

	rec, err := repo.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != "completed" {
		t.Fatalf("expected state completed, got %s", rec.State)
	}
	if !rec.CompletedAt.Valid {
		t.Fatal("expected CompletedAt to be set")
	}
}

func TestJobHistoryRepository_GetMissingReturnsErrNotFound(t *testing.T) {
	repo := NewJobHistoryRepository(testClient)
	if _, err := repo.Get(context.Background(), "nonexistent-key"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobHistoryRepository_RecordCompletedFailure(t *testing.T) {
	repo := NewJobHistoryRepository(testClient)
	ctx := context.Background()

	key := "block-exec/cafebabe"
	if err := repo.RecordClaimed(ctx, key, "block-exec"); err != nil {
		t.Fatalf("RecordClaimed: %v", err)
	}
	if err := repo.RecordCompleted(ctx, key, false, nil, "backend unavailable"); err != nil {
		t.Fatalf("RecordCompleted: %v", err)
	}

	rec, err := repo.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != "failed" {
		t.Fatalf("expected state failed, got %s", rec.State)
	}
	if !rec.ErrorDetail.Valid || rec.ErrorDetail.String != "backend unavailable" {
		t.Fatalf("expected error detail to be set, got %+v", rec.ErrorDetail)
	}
}
