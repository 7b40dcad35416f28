package sqlstore

import (
	"time"

	"github.com/goliatone/go-auth-broker/core"
)

func newUserRecord(in core.CreateUserInput, now time.Time) *userRecord {
	return &userRecord{
		ExternalID:  in.ExternalID,
		Username:    in.Username,
		DisplayName: in.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *userRecord) toDomain() core.User {
	if r == nil {
		return core.User{}
	}
	return core.User{
		ID:          r.ID,
		ExternalID:  r.ExternalID,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func newSessionRecord(in core.CreateSessionInput, now time.Time) *sessionRecord {
	return &sessionRecord{
		ID:         in.ID,
		UserID:     in.UserID,
		SecretHash: in.SecretHash,
		SecretSalt: in.SecretSalt,
		CreatedAt:  now,
		ExpiresAt:  in.ExpiresAt,
	}
}

func (r *sessionRecord) toDomain() core.Session {
	if r == nil {
		return core.Session{}
	}
	return core.Session{
		ID:         r.ID,
		UserID:     r.UserID,
		SecretHash: r.SecretHash,
		SecretSalt: r.SecretSalt,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
	}
}

func newUserTokenRecord(in core.SaveUserTokensInput, now time.Time) *userTokenRecord {
	return &userTokenRecord{
		UserID:                in.UserID,
		Provider:              in.Provider,
		ExternalID:            in.ExternalID,
		Scopes:                in.Scopes,
		EncryptedAccessToken:  append([]byte(nil), in.EncryptedAccessToken...),
		EncryptedRefreshToken: append([]byte(nil), in.EncryptedRefreshToken...),
		ExpiresAt:             in.ExpiresAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func (r *userTokenRecord) toDomain() core.UserToken {
	if r == nil {
		return core.UserToken{}
	}
	return core.UserToken{
		UserID:                r.UserID,
		Provider:              r.Provider,
		ExternalID:            r.ExternalID,
		Scopes:                r.Scopes,
		EncryptedAccessToken:  append([]byte(nil), r.EncryptedAccessToken...),
		EncryptedRefreshToken: append([]byte(nil), r.EncryptedRefreshToken...),
		ExpiresAt:             r.ExpiresAt,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

func newPairingSessionRecord(in core.CreatePairingSessionInput, now time.Time) *pairingSessionRecord {
	return &pairingSessionRecord{
		Code:         in.Code,
		State:        in.State,
		CodeVerifier: in.CodeVerifier,
		Completed:    false,
		CreatedAt:    now,
		ExpiresAt:    in.ExpiresAt,
	}
}

func (r *pairingSessionRecord) toDomain() core.PairingSession {
	if r == nil {
		return core.PairingSession{}
	}
	session := core.PairingSession{
		Code:         r.Code,
		State:        r.State,
		CodeVerifier: r.CodeVerifier,
		Completed:    r.Completed,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
	}
	if r.UserID != nil {
		userID := *r.UserID
		session.UserID = &userID
	}
	return session
}
