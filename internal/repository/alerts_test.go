package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/models"
)

func setupMockAlertDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlertRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewAlertRepository(db, logger)

	return db, mock, repo
}

func TestCreateAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	ctx := context.Background()
	alert := &models.Alert{
		AlertID:   uuid.New().String(),
		BabyID:    7,
		Kind:      models.AlertTemperature,
		Severity:  models.SeverityWarning,
		Title:     "Room temperature update",
		Message:   "We noticed the temperature is at 27.0°C — you might want to cool the room a bit.",
		Metadata:  `{"value": 27.0}`,
		Read:      false,
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO alerts`).
		WithArgs(
			alert.AlertID, alert.BabyID, alert.Kind, alert.Severity,
			alert.Title, alert.Message, alert.Metadata, alert.Read, alert.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateAlert(ctx, alert)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_MissingID(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	err := repo.CreateAlert(context.Background(), &models.Alert{BabyID: 7})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "alert_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_DBError(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	alert := &models.Alert{AlertID: uuid.New().String(), BabyID: 7, CreatedAt: time.Now()}

	mock.ExpectExec(`INSERT INTO alerts`).
		WillReturnError(errors.New("connection refused"))

	err := repo.CreateAlert(context.Background(), alert)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create alert")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlerts_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	alertID := uuid.New().String()
	createdAt := time.Now()

	rows := sqlmock.NewRows([]string{
		"alert_id", "baby_id", "kind", "severity",
		"title", "message", "metadata", "read", "created_at",
	}).AddRow(
		alertID, int64(7), "noise", "warning",
		"Noise level update", "We picked up some noise in the room (58dB) — it could be worth checking on.",
		[]byte(`{"value": 58}`), false, createdAt,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(int64(7), 50, 0).
		WillReturnRows(rows)

	alerts, err := repo.ListAlerts(context.Background(), 7, false, 50, 0)

	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alertID, alerts[0].AlertID)
	assert.Equal(t, models.AlertNoise, alerts[0].Kind)
	assert.Equal(t, models.SeverityWarning, alerts[0].Severity)
	assert.False(t, alerts[0].Read)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlerts_EmptyMetadataDefaultsToObject(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"alert_id", "baby_id", "kind", "severity",
		"title", "message", "metadata", "read", "created_at",
	}).AddRow(
		uuid.New().String(), int64(7), "awakening", "info",
		"Baby woke up", "Baby woke up at 06:45 after sleeping for 1h 5m.",
		[]byte{}, true, time.Now(),
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(int64(7), 20, 0).
		WillReturnRows(rows)

	alerts, err := repo.ListAlerts(context.Background(), 7, true, 20, 0)

	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "{}", alerts[0].Metadata)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnreadCount(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.UnreadCount(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	ids := []string{uuid.New().String(), uuid.New().String()}

	mock.ExpectExec(`UPDATE alerts`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.MarkRead(context.Background(), ids)

	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead_EmptyInputIsNoop(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	affected, err := repo.MarkRead(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAllRead(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE alerts`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 5))

	affected, err := repo.MarkAllRead(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, int64(5), affected)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAlerts(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	ids := []string{uuid.New().String()}

	mock.ExpectExec(`DELETE FROM alerts`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.DeleteAlerts(context.Background(), ids)

	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	require.NoError(t, mock.ExpectationsWereMet())
}
