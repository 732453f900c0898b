package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/models"
)

// SensorSampleRepository 传感器样本仓库
type SensorSampleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSensorSampleRepository 创建传感器样本仓库
func NewSensorSampleRepository(db *sql.DB, logger *zap.Logger) *SensorSampleRepository {
	return &SensorSampleRepository{
		db:     db,
		logger: logger,
	}
}

// InsertSample 写入一条传感器样本
func (r *SensorSampleRepository) InsertSample(ctx context.Context, sample models.SensorSample) error {
	query := `
		INSERT INTO sensor_samples (
			baby_id,
			kind,
			value,
			timestamp
		) VALUES (
			$1, $2, $3, $4
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		sample.BabyID,
		sample.Kind,
		sample.Value,
		sample.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to insert sensor sample: %w", err)
	}

	return nil
}

// LatestReadings 每种传感器的最新读数
func (r *SensorSampleRepository) LatestReadings(ctx context.Context, babyID int64) (map[models.SensorKind]float64, error) {
	query := `
		SELECT DISTINCT ON (kind)
			kind,
			value
		FROM sensor_samples
		WHERE baby_id = $1
		ORDER BY kind, timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, query, babyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest readings: %w", err)
	}
	defer rows.Close()

	readings := make(map[models.SensorKind]float64)
	for rows.Next() {
		var kind models.SensorKind
		var value float64

		if err := rows.Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("failed to scan sensor reading: %w", err)
		}
		readings[kind] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensor readings: %w", err)
	}

	return readings, nil
}

// StatsForPeriod 时间段内每种传感器的聚合统计
func (r *SensorSampleRepository) StatsForPeriod(ctx context.Context, babyID int64, start, end time.Time) (models.SensorSummary, error) {
	query := `
		SELECT
			kind,
			COUNT(*),
			MIN(value),
			MAX(value),
			AVG(value)
		FROM sensor_samples
		WHERE baby_id = $1
		  AND timestamp >= $2
		  AND timestamp <= $3
		GROUP BY kind
	`

	rows, err := r.db.QueryContext(ctx, query, babyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor stats: %w", err)
	}
	defer rows.Close()

	summary := models.SensorSummary{}
	for rows.Next() {
		var kind models.SensorKind
		var stats models.SensorStats

		err := rows.Scan(
			&kind,
			&stats.Count,
			&stats.Min,
			&stats.Max,
			&stats.Avg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sensor stats: %w", err)
		}
		summary[kind] = stats
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensor stats: %w", err)
	}

	return summary, nil
}

// PruneBefore 清理指定时刻之前的历史样本，返回删除的行数
func (r *SensorSampleRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM sensor_samples
		WHERE timestamp < $1
	`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sensor samples: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		r.logger.Info("Pruned sensor samples",
			zap.Int64("rows", rowsAffected),
			zap.Time("cutoff", cutoff),
		)
	}

	return rowsAffected, nil
}
