package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"example.com/marathon/internal/domain"
)

const athleteColumns = `id, name, external_id, access_token, refresh_token, token_expires_at, active, created_at`

func scanAthlete(row pgx.Row) (domain.Athlete, error) {
	var a domain.Athlete
	if err := row.Scan(&a.ID, &a.Name, &a.ExternalID, &a.AccessToken, &a.RefreshToken, &a.TokenExpiresAt, &a.Active, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Athlete{}, domain.ErrAthleteNotFound
		}
		return domain.Athlete{}, err
	}
	return a, nil
}

func (s *Store) listAthletes(ctx context.Context, query string, args ...any) ([]domain.Athlete, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Athlete
	for rows.Next() {
		athlete, err := scanAthlete(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, athlete)
	}
	return out, rows.Err()
}

// ListActive implements domain.AthleteRepository.
func (s *Store) ListActive(ctx context.Context) ([]domain.Athlete, error) {
	return s.listAthletes(ctx, `SELECT `+athleteColumns+` FROM athletes WHERE active ORDER BY id`)
}

// ListAthletes implements domain.AthleteRepository.
func (s *Store) ListAthletes(ctx context.Context) ([]domain.Athlete, error) {
	return s.listAthletes(ctx, `SELECT `+athleteColumns+` FROM athletes ORDER BY id`)
}

// GetAthlete implements domain.AthleteRepository.
func (s *Store) GetAthlete(ctx context.Context, id int64) (*domain.Athlete, error) {
	athlete, err := scanAthlete(s.pool.QueryRow(ctx, `SELECT `+athleteColumns+` FROM athletes WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	return &athlete, nil
}

// EnsureAthlete returns the athlete with a case-insensitively equal name, creating it if needed.
func (s *Store) EnsureAthlete(ctx context.Context, name string) (domain.Athlete, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Athlete{}, errors.New("athlete name is required")
	}

	const byName = `SELECT ` + athleteColumns + ` FROM athletes WHERE LOWER(name) = LOWER($1)`
	athlete, err := scanAthlete(s.pool.QueryRow(ctx, byName, name))
	if !errors.Is(err, domain.ErrAthleteNotFound) {
		return athlete, err
	}

	athlete, err = scanAthlete(s.pool.QueryRow(ctx, `INSERT INTO athletes (name) VALUES ($1) RETURNING `+athleteColumns, name))
	if isUniqueViolation(err) {
		return scanAthlete(s.pool.QueryRow(ctx, byName, name))
	}
	return athlete, err
}

// UpdateTokens stores a refreshed credential. An empty refresh token or zero
// expiry keeps the stored value.
func (s *Store) UpdateTokens(ctx context.Context, athleteID int64, token domain.Token) error {
	const stmt = `UPDATE athletes
        SET access_token = $2,
            refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
            token_expires_at = COALESCE($4, token_expires_at)
        WHERE id = $1`

	tag, err := s.pool.Exec(ctx, stmt, athleteID, token.AccessToken, token.RefreshToken, expiry(token))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAthleteNotFound
	}
	return nil
}

// SetActive implements domain.AthleteRepository.
func (s *Store) SetActive(ctx context.Context, athleteID int64, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE athletes SET active = $2 WHERE id = $1`, athleteID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAthleteNotFound
	}
	return nil
}

// UpsertAuthorizedAthlete links an OAuth identity, matching on external ID
// first and then on an unlinked athlete with the same name.
func (s *Store) UpsertAuthorizedAthlete(ctx context.Context, authorized domain.AuthorizedAthlete) (domain.Athlete, error) {
	var result domain.Athlete
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		athlete, err := scanAthlete(tx.QueryRow(ctx,
			`SELECT `+athleteColumns+` FROM athletes WHERE external_id = $1 FOR UPDATE`, authorized.ExternalID))
		if errors.Is(err, domain.ErrAthleteNotFound) {
			athlete, err = scanAthlete(tx.QueryRow(ctx,
				`SELECT `+athleteColumns+` FROM athletes WHERE external_id IS NULL AND LOWER(name) = LOWER($1) FOR UPDATE`, authorized.Name))
		}
		if errors.Is(err, domain.ErrAthleteNotFound) {
			athlete, err = scanAthlete(tx.QueryRow(ctx,
				`INSERT INTO athletes (name) VALUES ($1) RETURNING `+athleteColumns, authorized.Name))
		}
		if err != nil {
			return mapError(err)
		}

		const stmt = `UPDATE athletes
            SET external_id = $2,
                access_token = $3,
                refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
                token_expires_at = COALESCE($5, token_expires_at),
                active = TRUE
            WHERE id = $1
            RETURNING ` + athleteColumns
		result, err = scanAthlete(tx.QueryRow(ctx, stmt,
			athlete.ID, authorized.ExternalID, authorized.Token.AccessToken, authorized.Token.RefreshToken, expiry(authorized.Token)))
		return mapError(err)
	})
	if err != nil {
		return domain.Athlete{}, fmt.Errorf("upsert authorized athlete %d: %w", authorized.ExternalID, err)
	}
	return result, nil
}

func expiry(token domain.Token) any {
	if token.ExpiresAt.IsZero() {
		return nil
	}
	return token.ExpiresAt
}
