package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/upwatch/internal/domain/notification"
)

var _ notification.SettingsRepo = (*SettingsRepo)(nil)

// TokenSealer protects push credentials at rest.
type TokenSealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

type SettingsRepo struct {
	db     *DB
	sealer TokenSealer
}

func NewSettingsRepo(db *DB, sealer TokenSealer) *SettingsRepo {
	return &SettingsRepo{db: db, sealer: sealer}
}

const (
	qSettingsByUser = `
SELECT user_id, email_enabled, COALESCE(email_address, ''), push_enabled,
       COALESCE(push_user_key, ''), COALESCE(push_api_token, '')
FROM notification_settings
WHERE user_id = $1;`

	qSettingsUpsert = `
INSERT INTO notification_settings (user_id, email_enabled, email_address, push_enabled, push_user_key, push_api_token)
VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''))
ON CONFLICT (user_id) DO UPDATE
SET email_enabled  = EXCLUDED.email_enabled,
    email_address  = EXCLUDED.email_address,
    push_enabled   = EXCLUDED.push_enabled,
    push_user_key  = EXCLUDED.push_user_key,
    push_api_token = EXCLUDED.push_api_token,
    updated_at     = now();`
)

func (r *SettingsRepo) GetByUser(ctx context.Context, userID int64) (*notification.Settings, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		s                notification.Settings
		userKey, tokenDB string
	)
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qSettingsByUser, userID).
		Scan(&s.UserID, &s.EmailEnabled, &s.EmailAddress, &s.PushEnabled, &userKey, &tokenDB); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan settings: %w", err)
	}

	r.openCredentials(&s, userKey, tokenDB)
	return &s, nil
}

// openCredentials fills the push credentials of s. A token that does not open
// (rotated key, corrupted row) leaves the token empty and records why.
func (r *SettingsRepo) openCredentials(s *notification.Settings, userKey, sealed string) {
	s.PushUserKey = notification.NewSecret(userKey)
	token, err := r.sealer.Open(sealed)
	if err != nil {
		s.PushCredentialErr = fmt.Errorf("open push token: %w", err)
		return
	}
	s.PushAPIToken = notification.NewSecret(token)
}

func (r *SettingsRepo) Upsert(ctx context.Context, s *notification.Settings) error {
	sealed, err := r.sealer.Seal(s.PushAPIToken.Reveal())
	if err != nil {
		return fmt.Errorf("seal push token: %w", err)
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qSettingsUpsert,
		s.UserID,
		s.EmailEnabled,
		s.EmailAddress,
		s.PushEnabled,
		s.PushUserKey.Reveal(),
		sealed,
	); err != nil {
		return fmt.Errorf("upsert settings: %w", mapErr(err))
	}
	return nil
}
