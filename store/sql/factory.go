package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-auth-broker/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	userStore    *UserStore
	sessionStore *SessionStore
	tokenStore   *TokenStore
	pairingStore *PairingStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.userStore != nil && f.tokenStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) UserStore() core.UserStore {
	if f == nil {
		return nil
	}
	return f.userStore
}

func (f *RepositoryFactory) SessionStore() core.SessionStore {
	if f == nil {
		return nil
	}
	return f.sessionStore
}

func (f *RepositoryFactory) TokenStore() core.TokenStore {
	if f == nil {
		return nil
	}
	return f.tokenStore
}

func (f *RepositoryFactory) PairingStore() core.PairingStore {
	if f == nil {
		return nil
	}
	return f.pairingStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	userStore, err := NewUserStore(f.db)
	if err != nil {
		return err
	}
	f.userStore = userStore

	sessionStore, err := NewSessionStore(f.db)
	if err != nil {
		return err
	}
	f.sessionStore = sessionStore

	tokenStore, err := NewTokenStore(f.db)
	if err != nil {
		return err
	}
	f.tokenStore = tokenStore

	pairingStore, err := NewPairingStore(f.db)
	if err != nil {
		return err
	}
	f.pairingStore = pairingStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
