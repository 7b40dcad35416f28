package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func sessionHandlers() repository.ModelHandlers[*sessionRecord] {
	return repository.ModelHandlers[*sessionRecord]{
		NewRecord: func() *sessionRecord {
			return &sessionRecord{}
		},
		GetID: func(record *sessionRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *sessionRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *sessionRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func pairingHandlers() repository.ModelHandlers[*pairingSessionRecord] {
	return repository.ModelHandlers[*pairingSessionRecord]{
		NewRecord: func() *pairingSessionRecord {
			return &pairingSessionRecord{}
		},
		GetID: func(record *pairingSessionRecord) uuid.UUID {
			// Pairing codes are human-typed, not UUIDs; lookups go
			// through the identifier column.
			return uuid.Nil
		},
		SetID: func(record *pairingSessionRecord, id uuid.UUID) {},
		GetIdentifier: func() string {
			return "code"
		},
		GetIdentifierValue: func(record *pairingSessionRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.Code)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
