package directory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/seetheplay/pkg/types"
)

type gameRow struct {
	ID            string `gorm:"column:id;primaryKey"`
	HomeTeamID    string `gorm:"column:home_team_id"`
	AwayTeamID    string `gorm:"column:away_team_id"`
	Status        string `gorm:"column:status"`
	Quarter       int    `gorm:"column:quarter"`
	TimeRemaining string `gorm:"column:time_remaining"`
	HomeScore     int    `gorm:"column:home_score"`
	AwayScore     int    `gorm:"column:away_score"`
}

func (gameRow) TableName() string { return "games" }

type predictionRow struct {
	ID              uint      `gorm:"column:id;primaryKey"`
	GameID          string    `gorm:"column:game_id"`
	PlayerID        string    `gorm:"column:player_id"`
	StatType        string    `gorm:"column:stat_type"`
	PredictedValue  float64   `gorm:"column:predicted_value"`
	Confidence      float64   `gorm:"column:confidence"`
	ProbabilityOver *float64  `gorm:"column:probability_over"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (predictionRow) TableName() string { return "predictions" }

// SQLCatalog reads teams and stored forecasts straight from the prediction backend's
// database. It never writes.
type SQLCatalog struct {
	db *gorm.DB
}

func NewSQLCatalog(db *gorm.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

func OpenSQLCatalog(databaseURL string, isDevelopment bool) (*SQLCatalog, error) {
	logLevel := logger.Error
	if isDevelopment {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLCatalog(db), nil
}

func (c *SQLCatalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Teams lists every team that appears in a stored game.
func (c *SQLCatalog) Teams(ctx context.Context) ([]Team, error) {
	var home, away []string
	if err := c.db.WithContext(ctx).Model(&gameRow{}).Distinct().Pluck("home_team_id", &home).Error; err != nil {
		return nil, fmt.Errorf("teams: %w", err)
	}
	if err := c.db.WithContext(ctx).Model(&gameRow{}).Distinct().Pluck("away_team_id", &away).Error; err != nil {
		return nil, fmt.Errorf("teams: %w", err)
	}
	return teamsFromIDs(append(home, away...)), nil
}

func (c *SQLCatalog) PlayerForecast(ctx context.Context, playerID string) (types.ForecastRecord, error) {
	var rows []predictionRow
	err := c.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return types.ForecastRecord{}, fmt.Errorf("player forecast: %w", err)
	}
	if len(rows) == 0 {
		return types.ForecastRecord{}, fmt.Errorf("player forecast %s: %w", playerID, ErrNotFound)
	}
	return foldPredictions(playerID, rows), nil
}

func teamsFromIDs(ids []string) []Team {
	slices.Sort(ids)
	ids = slices.Compact(ids)
	teams := make([]Team, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		teams = append(teams, Team{ID: id, Name: id, Alias: id})
	}
	return teams
}

// foldPredictions keeps the newest row per stat type. rows must be ordered newest first.
func foldPredictions(playerID string, rows []predictionRow) types.ForecastRecord {
	rec := types.ForecastRecord{
		PlayerID:    playerID,
		Predictions: make(map[string]types.StatProjection),
	}
	var confSum float64
	for _, row := range rows {
		if _, seen := rec.Predictions[row.StatType]; seen {
			continue
		}
		p := types.StatProjection{PredictedValue: row.PredictedValue, Confidence: row.Confidence}
		if row.ProbabilityOver != nil {
			p.ProbabilityOver = *row.ProbabilityOver
		}
		rec.Predictions[row.StatType] = p
		confSum += row.Confidence
	}
	rec.OverallConfidence = confSum / float64(len(rec.Predictions))
	return rec.Clamped()
}
