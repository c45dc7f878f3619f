package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"garage-sentry-backend/internal/store"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func setupSubscriptionRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	gormDB, mock := newTestDB(t)
	r := gin.New()
	handler := NewHandler(nil, store.NewGormStore(gormDB), nil, nil, nil)
	r.GET("/api/subscriptions", handler.GetSubscription)
	r.PUT("/api/subscriptions", handler.PutSubscription)
	r.DELETE("/api/subscriptions", handler.DeleteSubscription)
	return r, mock
}

func TestPutSubscription_InvalidRequest(t *testing.T) {
	router, _ := setupSubscriptionRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestPutSubscription(t *testing.T) {
	router, mock := setupSubscriptionRouter(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "push_subscriptions" .* ON CONFLICT \("endpoint"\) DO UPDATE`).
		WithArgs("https://push.example.com/abc", "key", "secret", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body := `{"endpoint":"https://push.example.com/abc","p256dh":"key","auth":"secret"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubscription(t *testing.T) {
	router, mock := setupSubscriptionRouter(t)

	t.Run("missing endpoint", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/subscriptions", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE endpoint = \$1`).
			WithArgs("https://push.example.com/missing", 1).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/subscriptions?endpoint=https://push.example.com/missing", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"subscription not found"}`, w.Body.String())
	})

	t.Run("found", func(t *testing.T) {
		created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE endpoint = \$1`).
			WithArgs("https://push.example.com/abc", 1).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://push.example.com/abc", "key", "secret", created))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/subscriptions?endpoint=https://push.example.com/abc", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"endpoint":"https://push.example.com/abc","created_at":"2026-10-01T12:00:00Z"}`, w.Body.String())
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSubscription(t *testing.T) {
	router, mock := setupSubscriptionRouter(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
		WithArgs("https://push.example.com/abc").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/subscriptions", strings.NewReader(`{"endpoint":"https://push.example.com/abc"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
