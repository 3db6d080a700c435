package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiveserver/fiveserver/internal/model"
)

// Match6Repository records team match results. Participants are
// linked through the matches_played table because a side can field
// up to two profiles.
type Match6Repository struct {
	pool *pgxpool.Pool
}

// NewMatch6Repository creates a new Match6Repository.
func NewMatch6Repository(pool *pgxpool.Pool) *Match6Repository {
	return &Match6Repository{pool: pool}
}

// Games returns the number of matches the profile took part in.
func (r *Match6Repository) Games(ctx context.Context, profileID int32) (int32, error) {
	var n int32
	err := r.pool.QueryRow(ctx,
		`SELECT count(match_id) FROM matches_played WHERE profile_id = $1`,
		profileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting games for profile %d: %w", profileID, err)
	}
	return n, nil
}

// Wins returns the number of matches the profile's side won.
func (r *Match6Repository) Wins(ctx context.Context, profileID int32) (int32, error) {
	var n int32
	err := r.pool.QueryRow(ctx,
		`SELECT count(m.id) FROM matches m
		 JOIN matches_played mp ON m.id = mp.match_id
		 WHERE mp.profile_id = $1
		   AND (mp.home AND m.score_home > m.score_away
		     OR NOT mp.home AND m.score_home < m.score_away)`, profileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting wins for profile %d: %w", profileID, err)
	}
	return n, nil
}

// Losses returns the number of matches the profile's side lost.
func (r *Match6Repository) Losses(ctx context.Context, profileID int32) (int32, error) {
	var n int32
	err := r.pool.QueryRow(ctx,
		`SELECT count(m.id) FROM matches m
		 JOIN matches_played mp ON m.id = mp.match_id
		 WHERE mp.profile_id = $1
		   AND (mp.home AND m.score_home < m.score_away
		     OR NOT mp.home AND m.score_home > m.score_away)`, profileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting losses for profile %d: %w", profileID, err)
	}
	return n, nil
}

// Draws returns the number of matches the profile's side drew.
func (r *Match6Repository) Draws(ctx context.Context, profileID int32) (int32, error) {
	var n int32
	err := r.pool.QueryRow(ctx,
		`SELECT count(m.id) FROM matches m
		 JOIN matches_played mp ON m.id = mp.match_id
		 WHERE mp.profile_id = $1 AND m.score_home = m.score_away`,
		profileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting draws for profile %d: %w", profileID, err)
	}
	return n, nil
}

// GoalsHome returns goals scored and allowed over the matches the
// profile played on the home side.
func (r *Match6Repository) GoalsHome(ctx context.Context, profileID int32) (scored, allowed int32, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(sum(m.score_home), 0), COALESCE(sum(m.score_away), 0)
		 FROM matches m
		 JOIN matches_played mp ON m.id = mp.match_id
		 WHERE mp.profile_id = $1 AND mp.home`, profileID).Scan(&scored, &allowed)
	if err != nil {
		return 0, 0, fmt.Errorf("summing home goals for profile %d: %w", profileID, err)
	}
	return scored, allowed, nil
}

// GoalsAway returns goals scored and allowed over the matches the
// profile played on the away side.
func (r *Match6Repository) GoalsAway(ctx context.Context, profileID int32) (scored, allowed int32, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(sum(m.score_away), 0), COALESCE(sum(m.score_home), 0)
		 FROM matches m
		 JOIN matches_played mp ON m.id = mp.match_id
		 WHERE mp.profile_id = $1 AND NOT mp.home`, profileID).Scan(&scored, &allowed)
	if err != nil {
		return 0, 0, fmt.Errorf("summing away goals for profile %d: %w", profileID, err)
	}
	return scored, allowed, nil
}

// Streaks returns the current and best winning streak for a profile.
func (r *Match6Repository) Streaks(ctx context.Context, profileID int32) (wins, best int32, err error) {
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

// LastTeamsUsed returns the team ids the profile picked in its most
// recent matches, newest first.
func (r *Match6Repository) LastTeamsUsed(ctx context.Context, profileID int32, n int) ([]int32, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.team_id_home, m.team_id_away, mp.home
		 FROM matches m
		 JOIN matches_played mp ON m.id = mp.match_id
		 WHERE mp.profile_id = $1
		 ORDER BY m.id DESC LIMIT $2`, profileID, n)
	if err != nil {
		return nil, fmt.Errorf("querying last teams for profile %d: %w", profileID, err)
	}
	defer rows.Close()

	teams := make([]int32, 0, n)
	for rows.Next() {
		var homeTeam, awayTeam int32
		var home bool
		if err := rows.Scan(&homeTeam, &awayTeam, &home); err != nil {
			return nil, fmt.Errorf("scanning team row: %w", err)
		}
		if home {
			teams = append(teams, homeTeam)
		} else {
			teams = append(teams, awayTeam)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating team rows: %w", err)
	}
	return teams, nil
}

// Stats assembles the aggregated match record of a profile.
func (r *Match6Repository) Stats(ctx context.Context, profileID int32) (*model.Stats, error) {
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

// Store records a finished team match, its participants and every
// participant's streak in one transaction. Returns the new match id.
func (r *Match6Repository) Store(ctx context.Context, m *model.Match6) (int32, error) {
	sel := m.TeamSelection
	if sel == nil || sel.HomeCaptain == nil || sel.AwayCaptain == nil {
		return 0, fmt.Errorf("storing match: incomplete team selection")
	}
	homeSide := append([]*model.Profile{sel.HomeCaptain}, sel.HomeMorePlayers...)
	awaySide := append([]*model.Profile{sel.AwayCaptain}, sel.AwayMorePlayers...)
	scoreHome, scoreAway := m.HomeScore(), m.AwayScore()

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
		`INSERT INTO matches (score_home, score_away, team_id_home, team_id_away)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		scoreHome, scoreAway, sel.HomeTeamID, sel.AwayTeamID).Scan(&matchID)
	if err != nil {
		return 0, fmt.Errorf("inserting match: %w", err)
	}

	for _, p := range homeSide {
		if _, err := tx.Exec(ctx,
			`INSERT INTO matches_played (match_id, profile_id, home)
			 VALUES ($1, $2, TRUE)`, matchID, p.ID); err != nil {
			return 0, fmt.Errorf("linking home profile %d: %w", p.ID, err)
		}
	}
	for _, p := range awaySide {
		if _, err := tx.Exec(ctx,
			`INSERT INTO matches_played (match_id, profile_id, home)
			 VALUES ($1, $2, FALSE)`, matchID, p.ID); err != nil {
			return 0, fmt.Errorf("linking away profile %d: %w", p.ID, err)
		}
	}

	homeWin := scoreHome > scoreAway
	awayWin := scoreHome < scoreAway
	entries := make([]streakEntry, 0, len(homeSide)+len(awaySide))
	for _, p := range homeSide {
		entries = append(entries, streakEntry{p.ID, homeWin})
	}
	for _, p := range awaySide {
		entries = append(entries, streakEntry{p.ID, awayWin})
	}
	if err := writeStreaks(ctx, tx, entries...); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit match transaction: %w", err)
	}
	return matchID, nil
}
