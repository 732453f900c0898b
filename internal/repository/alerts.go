// Package repository 实现 PostgreSQL 持久化层
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/models"
)

// AlertRepository 提醒仓库
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRepository 创建提醒仓库
func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

// CreateAlert 创建提醒
func (r *AlertRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	query := `
		INSERT INTO alerts (
			alert_id,
			baby_id,
			kind,
			severity,
			title,
			message,
			metadata,
			read,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		alert.AlertID,
		alert.BabyID,
		alert.Kind,
		alert.Severity,
		alert.Title,
		alert.Message,
		alert.Metadata,
		alert.Read,
		alert.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// ListAlerts 按宝宝查询提醒列表（时间倒序，支持只看未读和分页）
func (r *AlertRepository) ListAlerts(ctx context.Context, babyID int64, unreadOnly bool, limit, offset int) ([]*models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT
			alert_id,
			baby_id,
			kind,
			severity,
			title,
			message,
			metadata,
			read,
			created_at
		FROM alerts
		WHERE baby_id = $1
	`
	args := []interface{}{babyID}

	if unreadOnly {
		query += " AND read = FALSE"
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		var alert models.Alert
		var metadata []byte

		err := rows.Scan(
			&alert.AlertID,
			&alert.BabyID,
			&alert.Kind,
			&alert.Severity,
			&alert.Title,
			&alert.Message,
			&metadata,
			&alert.Read,
			&alert.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		if len(metadata) > 0 {
			alert.Metadata = string(metadata)
		} else {
			alert.Metadata = "{}"
		}

		alerts = append(alerts, &alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}

// UnreadCount 未读提醒数量
func (r *AlertRepository) UnreadCount(ctx context.Context, babyID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM alerts
		WHERE baby_id = $1
		  AND read = FALSE
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, babyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread alerts: %w", err)
	}

	return count, nil
}

// MarkRead 批量标记已读，返回实际更新的行数
func (r *AlertRepository) MarkRead(ctx context.Context, alertIDs []string) (int64, error) {
	if len(alertIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE alerts
		SET read = TRUE
		WHERE alert_id = ANY($1)
	`

	result, err := r.db.ExecContext(ctx, query, pq.Array(alertIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to mark alerts read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// MarkAllRead 标记某个宝宝的全部提醒为已读
func (r *AlertRepository) MarkAllRead(ctx context.Context, babyID int64) (int64, error) {
	query := `
		UPDATE alerts
		SET read = TRUE
		WHERE baby_id = $1
		  AND read = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, babyID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all alerts read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// DeleteAlerts 批量删除提醒，返回实际删除的行数
func (r *AlertRepository) DeleteAlerts(ctx context.Context, alertIDs []string) (int64, error) {
	if len(alertIDs) == 0 {
		return 0, nil
	}

	query := `
		DELETE FROM alerts
		WHERE alert_id = ANY($1)
	`

	result, err := r.db.ExecContext(ctx, query, pq.Array(alertIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete alerts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
