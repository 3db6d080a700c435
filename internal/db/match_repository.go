package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiveserver/fiveserver/internal/model"
)

// MatchRepository records one-on-one match results with the two
// profile ids embedded in the match row.
type MatchRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRepository creates a new MatchRepository.
func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

// Games returns the number of matches the profile took part in.
func (r *MatchRepository) Games(ctx context.Context, profileID int32) (int32, error) {
	var n int32
	err := r.pool.QueryRow(ctx,
		`SELECT count(id) FROM matches
		 WHERE profile_id_home = $1 OR profile_id_away = $1`, profileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting games for profile %d: %w", profileID, err)
	}
	return n, nil
}

// Wins returns the number of matches the profile won.
func (r *MatchRepository) Wins(ctx context.Context, profileID int32) (int32, error) {
	var n int32
	err := r.pool.QueryRow(ctx,
		`SELECT count(id) FROM matches
		 WHERE profile_id_home = $1 AND score_home > score_away
		    OR profile_id_away = $1 AND score_home < score_away`, profileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting wins for profile %d: %w", profileID, err)
	}
	return n, nil
}

// Losses returns the number of matches the profile lost.
func (r *MatchRepository) Losses(ctx context.Context, profileID int32) (int32, error) {
	var n int32
	err := r.pool.QueryRow(ctx,
		`SELECT count(id) FROM matches
		 WHERE profile_id_home = $1 AND score_home < score_away
		    OR profile_id_away = $1 AND score_home > score_away`, profileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting losses for profile %d: %w", profileID, err)
	}
	return n, nil
}

// Draws returns the number of matches the profile drew.
func (r *MatchRepository) Draws(ctx context.Context, profileID int32) (int32, error) {
	var n int32
	err := r.pool.QueryRow(ctx,
		`SELECT count(id) FROM matches
		 WHERE (profile_id_home = $1 OR profile_id_away = $1)
		   AND score_home = score_away`, profileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting draws for profile %d: %w", profileID, err)
	}
	return n, nil
}

// GoalsHome returns goals scored and allowed over the profile's home
// matches.
func (r *MatchRepository) GoalsHome(ctx context.Context, profileID int32) (scored, allowed int32, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(sum(score_home), 0), COALESCE(sum(score_away), 0)
		 FROM matches WHERE profile_id_home = $1`, profileID).Scan(&scored, &allowed)
	if err != nil {
		return 0, 0, fmt.Errorf("summing home goals for profile %d: %w", profileID, err)
	}
	return scored, allowed, nil
}

// GoalsAway returns goals scored and allowed over the profile's away
// matches.
func (r *MatchRepository) GoalsAway(ctx context.Context, profileID int32) (scored, allowed int32, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(sum(score_away), 0), COALESCE(sum(score_home), 0)
		 FROM matches WHERE profile_id_away = $1`, profileID).Scan(&scored, &allowed)
	if err != nil {
		return 0, 0, fmt.Errorf("summing away goals for profile %d: %w", profileID, err)
	}
	return scored, allowed, nil
}

// Streaks returns the current and best winning streak for a profile.
// A profile with no recorded matches yields zeros.
func (r *MatchRepository) Streaks(ctx context.Context, profileID int32) (wins, best int32, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT wins, best FROM streaks WHERE profile_id = $1`,
		profileID).Scan(&wins, &best)
	if err == pgx.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("querying streaks for profile %d: %w", profileID, err)
	}
	return wins, best, nil
}

// Stats assembles the aggregated match record of a profile.
func (r *MatchRepository) Stats(ctx context.Context, profileID int32) (*model.Stats, error) {
	s := &model.Stats{ProfileID: profileID}
	var err error
	if s.Wins, err = r.Wins(ctx, profileID); err != nil {
		return nil, err
	}
	if s.Losses, err = r.Losses(ctx, profileID); err != nil {
		return nil, err
	}
	if s.Draws, err = r.Draws(ctx, profileID); err != nil {
		return nil, err
	}
	homeScored, homeAllowed, err := r.GoalsHome(ctx, profileID)
	if err != nil {
		return nil, err
	}
	awayScored, awayAllowed, err := r.GoalsAway(ctx, profileID)
	if err != nil {
		return nil, err
	}
	s.GoalsScored = homeScored + awayScored
	s.GoalsAllowed = homeAllowed + awayAllowed
	if s.StreakCurrent, s.StreakBest, err = r.Streaks(ctx, profileID); err != nil {
		return nil, err
	}
	return s, nil
}

// Store records a finished match and updates both winning streaks in
// one transaction. Returns the new match id.
func (r *MatchRepository) Store(ctx context.Context, m *model.Match) (int32, error) {
	if m.HomeProfile == nil || m.AwayProfile == nil {
		return 0, fmt.Errorf("storing match: missing participant profile")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin match transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.Error("match rollback failed", "error", err)
		}
	}()

	var matchID int32
	err = tx.QueryRow(ctx,
		`INSERT INTO matches (profile_id_home, profile_id_away,
		   score_home, score_away, team_id_home, team_id_away)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		m.HomeProfile.ID, m.AwayProfile.ID,
		m.ScoreHome, m.ScoreAway, m.HomeTeamID, m.AwayTeamID).Scan(&matchID)
	if err != nil {
		return 0, fmt.Errorf("inserting match: %w", err)
	}

	switch {
	case m.ScoreHome > m.ScoreAway:
		err = writeStreaks(ctx, tx,
			streakEntry{m.HomeProfile.ID, true},
			streakEntry{m.AwayProfile.ID, false})
	case m.ScoreHome < m.ScoreAway:
		err = writeStreaks(ctx, tx,
			streakEntry{m.HomeProfile.ID, false},
			streakEntry{m.AwayProfile.ID, true})
	default:
		err = writeStreaks(ctx, tx,
			streakEntry{m.HomeProfile.ID, false},
			streakEntry{m.AwayProfile.ID, false})
	}
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit match transaction: %w", err)
	}
	return matchID, nil
}

type streakEntry struct {
	profileID int32
	win       bool
}

// writeStreaks folds one match outcome into the streak rows. A win
// extends the current run and may raise the best; anything else
// resets the run and keeps the best.
func writeStreaks(ctx context.Context, tx pgx.Tx, entries ...streakEntry) error {
	for _, e := range entries {
		var wins, best int32
		err := tx.QueryRow(ctx,
			`SELECT wins, best FROM streaks WHERE profile_id = $1`,
			e.profileID).Scan(&wins, &best)
		if err != nil && err != pgx.ErrNoRows {
			return fmt.Errorf("reading streak for profile %d: %w", e.profileID, err)
		}
		if e.win {
			wins++
			if wins > best {
				best = wins
			}
		} else {
			wins = 0
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO streaks (profile_id, wins, best)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (profile_id) DO UPDATE SET
			   wins = EXCLUDED.wins, best = EXCLUDED.best`,
			e.profileID, wins, best)
		if err != nil {
			return fmt.Errorf("writing streak for profile %d: %w", e.profileID, err)
		}
	}
	return nil
}
