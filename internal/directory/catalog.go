package directory

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/pkg/types"
)

// Store is the read-only database side of the directory.
type Store interface {
	Teams(ctx context.Context) ([]Team, error)
	PlayerForecast(ctx context.Context, playerID string) (types.ForecastRecord, error)
}

// Catalog prefers the database for teams and forecasts when one is configured and
// falls back to the HTTP API. Rosters always come from the API.
type Catalog struct {
	api   Directory
	store Store
	log   *zap.SugaredLogger
}

func NewCatalog(api Directory, store Store, logger *zap.Logger) *Catalog {
	return &Catalog{api: api, store: store, log: logger.Sugar().Named("catalog")}
}

func (c *Catalog) Teams(ctx context.Context) ([]Team, error) {
	if c.store != nil {
		teams, err := c.store.Teams(ctx)
		if err == nil && len(teams) > 0 {
			return teams, nil
		}
		if err != nil {
			c.log.Warnw("database team lookup failed, using api", "error", err)
		}
	}
	return c.api.Teams(ctx)
}

func (c *Catalog) TeamPlayers(ctx context.Context, teamID string) ([]Player, error) {
	return c.api.TeamPlayers(ctx, teamID)
}

func (c *Catalog) PlayerForecast(ctx context.Context, playerID string) (types.ForecastRecord, error) {
	if c.store != nil {
		rec, err := c.store.PlayerForecast(ctx, playerID)
		if err == nil {
			return rec, nil
		}
		c.log.Debugw("database forecast lookup failed, using api", "player_id", playerID, "error", err)
	}
	return c.api.PlayerForecast(ctx, playerID)
}
