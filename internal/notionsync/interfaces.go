package notionsync

import (
	"context"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/jomei/notionapi"
)

// NotionService is the subset of the Notion API the mirror needs.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// UpdatePage replaces the given properties on an existing page.
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase returns one page of results for the request.
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// ArchivePage moves a page to the trash.
	ArchivePage(ctx context.Context, pageID string) error
}

// VaultReader gives read access to a vault's transactions and the category
// names used to label them. vaults.Service satisfies it through Adapter.
type VaultReader interface {
	Transactions(ctx context.Context, vaultID string) ([]ledger.TransactionRecord, error)
	CategoryNames(ctx context.Context, vaultID string) (map[string]string, error)
}
