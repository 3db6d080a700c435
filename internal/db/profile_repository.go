package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiveserver/fiveserver/internal/model"
)

// ProfileRepository manages in-game profiles. The schema carries the
// columns of both game generations; each server process only reads
// the ones its dialect shows on the wire.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

const profileColumns = `id, user_id, ordinal, name, fav_player, fav_team,
	rank, rating, points, disconnects, seconds_played, comment`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	err := row.Scan(&p.ID, &p.UserID, &p.Index, &p.Name, &p.FavPlayer,
		&p.FavTeam, &p.Rank, &p.Rating, &p.Points, &p.Disconnects,
		&p.PlayTime, &p.Comment)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns the profile with the given id.
// Returns nil, nil if no such profile exists.
func (r *ProfileRepository) Get(ctx context.Context, id int32) (*model.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE NOT deleted AND id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile %d: %w", id, err)
	}
	return p, nil
}

// GetByUserID returns the user's profiles, least recently stored
// first. The slot order shown to the client follows from this.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID int32) ([]*model.Profile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE NOT deleted AND user_id = $1
		 ORDER BY updated_on ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying profiles for user %d: %w", userID, err)
	}
	defer rows.Close()

	profiles := make([]*model.Profile, 0, 3)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profile rows: %w", err)
	}
	return profiles, nil
}

// FindByName returns the profile with the given name, or nil, nil.
func (r *ProfileRepository) FindByName(ctx context.Context, name string) (*model.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE NOT deleted AND name = $1`, name))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile by name %q: %w", name, err)
	}
	return p, nil
}

// Browse returns one page of profiles ordered by name, together with
// the total number of non-deleted profiles.
func (r *ProfileRepository) Browse(ctx context.Context, offset, limit int) (int, []*model.Profile, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT count(id) FROM profiles WHERE NOT deleted`).Scan(&total)
	if err != nil {
		return 0, nil, fmt.Errorf("counting profiles: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE NOT deleted
		 ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return 0, nil, fmt.Errorf("browsing profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]*model.Profile, 0, limit)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return 0, nil, fmt.Errorf("scanning profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("iterating profile rows: %w", err)
	}
	return total, profiles, nil
}

// Store inserts or updates a profile. A profile without an id yet is
// inserted and its id filled in; inserting over a soft-deleted row
// with the same name revives that row, history included.
func (r *ProfileRepository) Store(ctx context.Context, p *model.Profile) error {
	if p.ID <= 0 {
		err := r.pool.QueryRow(ctx,
			`INSERT INTO profiles (user_id, ordinal, name, fav_player, fav_team,
			   rank, rating, points, disconnects, seconds_played, comment)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (name) DO UPDATE SET
			   deleted = FALSE, user_id = EXCLUDED.user_id,
			   ordinal = EXCLUDED.ordinal, fav_player = EXCLUDED.fav_player,
			   fav_team = EXCLUDED.fav_team, rank = EXCLUDED.rank,
			   rating = EXCLUDED.rating, points = EXCLUDED.points,
			   disconnects = EXCLUDED.disconnects,
			   seconds_played = EXCLUDED.seconds_played,
			   comment = EXCLUDED.comment, updated_on = now()
			 RETURNING id`,
			p.UserID, p.Index, p.Name, p.FavPlayer, p.FavTeam,
			p.Rank, p.Rating, p.Points, p.Disconnects, p.PlayTime, p.Comment).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("inserting profile %q: %w", p.Name, err)
		}
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE profiles SET
		   deleted = FALSE, user_id = $2, ordinal = $3, name = $4,
		   fav_player = $5, fav_team = $6, rank = $7, rating = $8,
		   points = $9, disconnects = $10, seconds_played = $11,
		   comment = $12, updated_on = now()
		 WHERE id = $1`,
		p.ID, p.UserID, p.Index, p.Name, p.FavPlayer, p.FavTeam,
		p.Rank, p.Rating, p.Points, p.Disconnects, p.PlayTime, p.Comment)
	if err != nil {
		return fmt.Errorf("updating profile %d: %w", p.ID, err)
	}
	return nil
}

// Delete marks a profile deleted. Its name stays reserved and its
// match history is kept.
func (r *ProfileRepository) Delete(ctx context.Context, id int32) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE profiles SET deleted = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting profile %d: %w", id, err)
	}
	return nil
}

// Settings returns the stored option blobs for a profile. A profile
// that never uploaded settings yields empty blobs, not an error.
func (r *ProfileRepository) Settings(ctx context.Context, profileID int32) (*model.ProfileSettings, error) {
	var s model.ProfileSettings
	err := r.pool.QueryRow(ctx,
		`SELECT settings1, settings2 FROM settings WHERE profile_id = $1`,
		profileID).Scan(&s.Settings1, &s.Settings2)
	if err == pgx.ErrNoRows {
		return &model.ProfileSettings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying settings for profile %d: %w", profileID, err)
	}
	return &s, nil
}

// StoreSettings upserts the option blobs for a profile.
func (r *ProfileRepository) StoreSettings(ctx context.Context, profileID int32, s *model.ProfileSettings) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO settings (profile_id, settings1, settings2)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (profile_id) DO UPDATE SET
		   settings1 = EXCLUDED.settings1, settings2 = EXCLUDED.settings2`,
		profileID, s.Settings1, s.Settings2)
	if err != nil {
		return fmt.Errorf("storing settings for profile %d: %w", profileID, err)
	}
	return nil
}

// ComputeRanks recomputes the rank column for every profile in one
// transaction. Profiles are ordered by points, then play time; equal
// points share a rank and the next lower score resumes at its
// positional rank.
func (r *ProfileRepository) ComputeRanks(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rank transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.Error("rank rollback failed", "error", err)
		}
	}()

	type standing struct {
		id     int32
		points int32
	}

	rank, count := int32(1), int32(1)
	var lastPoints int32
	havePrev := false
	limit, offset := 50, 0
	for {
		rows, err := tx.Query(ctx,
			`SELECT id, points FROM profiles
			 ORDER BY points DESC, seconds_played DESC
			 LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return fmt.Errorf("querying standings: %w", err)
		}
		page := make([]standing, 0, limit)
		for rows.Next() {
			var s standing
			if err := rows.Scan(&s.id, &s.points); err != nil {
				rows.Close()
				return fmt.Errorf("scanning standing row: %w", err)
			}
			page = append(page, s)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating standing rows: %w", err)
		}

		for _, s := range page {
			if havePrev && lastPoints > s.points {
				rank = count
			}
			if _, err := tx.Exec(ctx,
				`UPDATE profiles SET rank = $1 WHERE id = $2`, rank, s.id); err != nil {
				return fmt.Errorf("updating rank for profile %d: %w", s.id, err)
			}
			lastPoints = s.points
			havePrev = true
			count++
		}
		if len(page) < limit {
			break
		}
		offset += limit
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rank transaction: %w", err)
	}
	return nil
}
