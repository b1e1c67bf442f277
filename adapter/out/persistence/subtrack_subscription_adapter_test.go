package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"subtrack_server/core/domain"
)

func TestSubscriptionAdapter_Create_DuplicateName(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	adapter := NewSubscriptionAdapter(db)

	mock.ExpectQuery("INSERT INTO subscriptions").
		WillReturnError(&pq.Error{Code: "23505"})

	sub := &domain.Subscription{Name: "Netflix", Status: domain.StatusActive}
	err := adapter.Create(context.Background(), sub)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create() error = %v, want ErrDuplicate", err)
	}
}

func TestSubscriptionAdapter_Create(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	adapter := NewSubscriptionAdapter(db)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO subscriptions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(7, now, now))

	sub := &domain.Subscription{
		Name:         "Spotify",
		Domains:      []string{"spotify.com"},
		Cost:         9.99,
		Currency:     "USD",
		BillingCycle: domain.CycleMonthly,
		Status:       domain.StatusActive,
		CreatedBy:    domain.CreatedByUser,
	}
	if err := adapter.Create(context.Background(), sub); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if sub.ID != 7 {
		t.Errorf("Create() ID = %d, want 7", sub.ID)
	}
}

func TestSubscriptionAdapter_Update_NotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	adapter := NewSubscriptionAdapter(db)

	mock.ExpectExec("UPDATE subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	sub := &domain.Subscription{ID: 404, Name: "Ghost"}
	if err := adapter.Update(context.Background(), sub); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestSubscriptionAdapter_GetByName_NotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	adapter := NewSubscriptionAdapter(db)

	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE name").
		WithArgs("Nothing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := adapter.GetByName(context.Background(), "Nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByName() error = %v, want ErrNotFound", err)
	}
}

func TestSubscriptionAdapter_Delete(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	adapter := NewSubscriptionAdapter(db)

	mock.ExpectExec("DELETE FROM subscriptions WHERE id").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := adapter.Delete(context.Background(), 3); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
}
