package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/accountgate/internal/dbx"
	"github.com/dmitrijs2005/accountgate/internal/server/repositories/accounts"
)

// RepositoryManager vends repositories bound to a connection or transaction
// and owns schema initialisation.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
}
