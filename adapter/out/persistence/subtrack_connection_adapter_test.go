package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"subtrack_server/core/domain"
)

func TestConnectionAdapter_GetActive_NotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	adapter := NewConnectionAdapter(db)

	mock.ExpectQuery("SELECT (.+) FROM connections").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := adapter.GetActive(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetActive() error = %v, want ErrNotFound", err)
	}
}

func TestConnectionAdapter_GetActive(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	adapter := NewConnectionAdapter(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM connections").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "access_token", "refresh_token", "token_expiry",
			"sync_cursor", "last_sync_at", "is_active", "created_at", "updated_at",
		}).AddRow(1, "user@example.com", "at", "rt", now.Add(time.Hour),
			"cursor-1", nil, true, now, now))

	conn, err := adapter.GetActive(context.Background())
	if err != nil {
		t.Fatalf("GetActive() error: %v", err)
	}
	if conn.Email != "user@example.com" {
		t.Errorf("Email = %q, want %q", conn.Email, "user@example.com")
	}
	if conn.SyncCursor != "cursor-1" {
		t.Errorf("SyncCursor = %q, want %q", conn.SyncCursor, "cursor-1")
	}
	if conn.LastSyncAt != nil {
		t.Errorf("LastSyncAt = %v, want nil", conn.LastSyncAt)
	}
}

func TestConnectionAdapter_UpdateCursor(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	adapter := NewConnectionAdapter(db)

	mock.ExpectExec("UPDATE connections").
		WithArgs("next-page-token", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := adapter.UpdateCursor(context.Background(), 1, "next-page-token"); err != nil {
		t.Fatalf("UpdateCursor() error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestConnectionAdapter_Upsert(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	adapter := NewConnectionAdapter(db)

	mock.ExpectQuery("INSERT INTO connections").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	conn := &domain.Connection{
		Email:       "user@example.com",
		AccessToken: "at",
		TokenExpiry: time.Now().Add(time.Hour),
	}
	if err := adapter.Upsert(context.Background(), conn); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if conn.ID != 5 {
		t.Errorf("Upsert() ID = %d, want 5", conn.ID)
	}
}
