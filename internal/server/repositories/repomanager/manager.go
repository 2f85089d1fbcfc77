package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/taxdesk/internal/dbx"
	"github.com/dmitrijs2005/taxdesk/internal/server/repositories/professionals"
	"github.com/dmitrijs2005/taxdesk/internal/server/repositories/requests"
)

// RepositoryManager vends repositories bound to a DBTX so services can use
// the same code inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Requests(db dbx.DBTX) requests.Repository
	Professionals(db dbx.DBTX) professionals.Repository
}
