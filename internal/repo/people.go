package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hikenity/internal/model"
)

func (r *repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row, err := r.db.QueryRowWithRetry(ctx, r.strategy, `SELECT id, fcm_token FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var (
		u     model.User
		token sql.NullString
	)
	if err := row.Scan(&u.ID, &token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.FCMToken = token.String
	return &u, nil
}

func scanOrganiser(row rowScanner) (*model.Organiser, error) {
	var (
		o        model.Organiser
		fullName sql.NullString
		certURL  sql.NullString
	)
	if err := row.Scan(&o.ID, &fullName, &certURL, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.FullName = fullName.String
	o.CertificateURL = certURL.String
	return &o, nil
}

func (r *repository) GetOrganiserByID(ctx context.Context, id string) (*model.Organiser, error) {
	query := `SELECT id, full_name, certificate_url, updated_at FROM organisers WHERE id = $1`

	row, err := r.db.QueryRowWithRetry(ctx, r.strategy, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrganiserNotFound
		}
		return nil, fmt.Errorf("failed to get organiser: %w", err)
	}

	o, err := scanOrganiser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrganiserNotFound
		}
		return nil, fmt.Errorf("failed to scan organiser: %w", err)
	}
	return o, nil
}

// UpdateOrganiserCertificateTx sets the certificate url, creating the
// organiser row when it does not exist yet. before is nil for a new row.
// A nil fullName keeps the stored name.
func (r *repository) UpdateOrganiserCertificateTx(ctx context.Context, id, certificateURL string, fullName *string) (*model.Organiser, *model.Organiser, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	before, err := scanOrganiser(tx.QueryRowContext(ctx, `
		SELECT id, full_name, certificate_url, updated_at
		FROM organisers
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			_ = tx.Rollback()
			return nil, nil, fmt.Errorf("failed to lock organiser: %w", err)
		}
		before = nil
	}

	name := ""
	if before != nil {
		name = before.FullName
	}
	if fullName != nil {
		name = *fullName
	}

	after, err := scanOrganiser(tx.QueryRowContext(ctx, `
		INSERT INTO organisers (id, full_name, certificate_url, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    certificate_url = EXCLUDED.certificate_url,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, full_name, certificate_url, updated_at
	`, id, nullable(name), nullable(certificateURL)))
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("failed to upsert organiser: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return before, after, nil
}

func (r *repository) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	rows, err := r.db.QueryWithRetry(ctx, r.strategy, `SELECT id, fcm_token FROM admins ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []model.Admin
	for rows.Next() {
		var (
			a     model.Admin
			token sql.NullString
		)
		if err := rows.Scan(&a.ID, &token); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		a.FCMToken = token.String
		admins = append(admins, a)
	}

	return admins, rows.Err()
}
