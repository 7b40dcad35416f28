package sqlstore

import "github.com/goliatone/go-auth-broker/core"

var (
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
