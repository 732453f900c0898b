package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/models"
)

// AwakeningEventRepository 醒来事件仓库
// 事件在 asleep → awake 转换时写入一次，之后只允许补充 AI 洞察
type AwakeningEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAwakeningEventRepository 创建醒来事件仓库
func NewAwakeningEventRepository(db *sql.DB, logger *zap.Logger) *AwakeningEventRepository {
	return &AwakeningEventRepository{
		db:     db,
		logger: logger,
	}
}

// CreateEvent 写入醒来事件
func (r *AwakeningEventRepository) CreateEvent(ctx context.Context, event *models.AwakeningEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	query := `
		INSERT INTO awakening_events (
			event_id,
			baby_id,
			timestamp,
			metadata,
			ai_insight,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err = r.db.ExecContext(ctx,
		query,
		event.EventID,
		event.BabyID,
		event.Timestamp,
		metadata,
		event.AIInsight,
		event.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create awakening event: %w", err)
	}

	return nil
}

// UpdateInsight 补充 AI 洞察文本（事件本体不可变，这是唯一的更新路径）
func (r *AwakeningEventRepository) UpdateInsight(ctx context.Context, eventID, insight string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		UPDATE awakening_events
		SET ai_insight = $1
		WHERE event_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, insight, eventID)
	if err != nil {
		return fmt.Errorf("failed to update awakening insight: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("awakening event not found: event_id=%s", eventID)
	}

	return nil
}

// ListForPeriod 查询时间段内的醒来事件（时间升序，供报表聚合使用）
func (r *AwakeningEventRepository) ListForPeriod(ctx context.Context, babyID int64, start, end time.Time) ([]models.AwakeningEvent, error) {
	query := `
		SELECT
			event_id,
			baby_id,
			timestamp,
			metadata,
			ai_insight,
			created_at
		FROM awakening_events
		WHERE baby_id = $1
		  AND timestamp >= $2
		  AND timestamp <= $3
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, query, babyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query awakening events: %w", err)
	}
	defer rows.Close()

	events := []models.AwakeningEvent{}
	for rows.Next() {
		var event models.AwakeningEvent
		var metadata []byte
		var insight sql.NullString

		err := rows.Scan(
			&event.EventID,
			&event.BabyID,
			&event.Timestamp,
			&metadata,
			&insight,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan awakening event: %w", err)
		}

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				r.logger.Warn("Skipping malformed awakening metadata",
					zap.String("event_id", event.EventID),
					zap.Error(err),
				)
			}
		}
		if insight.Valid {
			event.AIInsight = &insight.String
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate awakening events: %w", err)
	}

	return events, nil
}
