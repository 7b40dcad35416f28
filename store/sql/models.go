package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type userRecord struct {
	bun.BaseModel `bun:"table:broker_users,alias:bu"`

	ID          int64     `bun:"id,pk,autoincrement"`
	ExternalID  string    `bun:"external_id,notnull,unique"`
	Username    string    `bun:"username"`
	DisplayName string    `bun:"display_name"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type sessionRecord struct {
	bun.BaseModel `bun:"table:broker_sessions,alias:bs"`

	ID         string    `bun:"id,pk"`
	UserID     int64     `bun:"user_id,notnull"`
	SecretHash string    `bun:"secret_hash,notnull"`
	SecretSalt string    `bun:"secret_salt,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
}

type userTokenRecord struct {
	bun.BaseModel `bun:"table:broker_user_tokens,alias:but"`

	UserID                int64     `bun:"user_id,pk"`
	Provider              string    `bun:"provider,notnull"`
	ExternalID            string    `bun:"external_id"`
	Scopes                string    `bun:"scopes,notnull"`
	EncryptedAccessToken  []byte    `bun:"encrypted_access_token,notnull"`
	EncryptedRefreshToken []byte    `bun:"encrypted_refresh_token"`
	ExpiresAt             time.Time `bun:"expires_at,notnull"`
	CreatedAt             time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type pairingSessionRecord struct {
	bun.BaseModel `bun:"table:broker_pairing_sessions,alias:bps"`

	Code         string    `bun:"code,pk"`
	State        string    `bun:"state,notnull,unique"`
	CodeVerifier string    `bun:"code_verifier,notnull"`
	UserID       *int64    `bun:"user_id"`
	Completed    bool      `bun:"completed,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
}
