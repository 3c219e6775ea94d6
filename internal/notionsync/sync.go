// Package notionsync mirrors a vault's transactions into a Notion database,
// one page per transaction keyed by its id.
package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/vaults"
	"github.com/jomei/notionapi"
)

const pageSize = 100

// SyncReport counts what a sync did, or would do in dry-run mode.
type SyncReport struct {
	Created  int  `json:"created"`
	Updated  int  `json:"updated"`
	Archived int  `json:"archived"`
	DryRun   bool `json:"dry_run"`
}

// SyncVault makes the database mirror the vault: pages are created for new
// transactions, refreshed for existing ones and archived when the transaction
// was deleted. Only pages carrying the vault's id are considered, so several
// vaults can share one database. With dryRun nothing is written.
func SyncVault(ctx context.Context, source VaultReader, notion NotionService, databaseID, vaultID string, dryRun bool) (*SyncReport, error) {
	ctx, log := logger.ForVault(ctx, vaultID)
	log.Info().Bool("dry_run", dryRun).Str("database_id", databaseID).Msg("Starting Notion sync")

	transactions, err := source.Transactions(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("SyncVault: loading transactions: %w", err)
	}
	names, err := source.CategoryNames(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("SyncVault: loading categories: %w", err)
	}

	pages, err := queryVaultPages(ctx, notion, databaseID, vaultID)
	if err != nil {
		return nil, fmt.Errorf("SyncVault: %w", err)
	}

	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		txID := extractTransactionID(page)
		if txID == "" {
			log.Warn().Str("page_id", string(page.ID)).Msg("Page without transaction id, ignoring")
			continue
		}
		existing[txID] = string(page.ID)
	}

	report := &SyncReport{DryRun: dryRun}
	live := make(map[string]bool, len(transactions))

	for _, tx := range transactions {
		live[tx.ID] = true
		props := TransactionToNotionProperties(tx, names)

		if pageID, ok := existing[tx.ID]; ok {
			if dryRun {
				log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would update page")
			} else if _, err := notion.UpdatePage(ctx, pageID, props); err != nil {
				return report, fmt.Errorf("SyncVault: updating %s: %w", tx.Code, err)
			}
			report.Updated++
			continue
		}

		if dryRun {
			log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create page")
		} else if _, err := notion.CreatePage(ctx, databaseID, props); err != nil {
			return report, fmt.Errorf("SyncVault: creating %s: %w", tx.Code, err)
		}
		report.Created++
	}

	for txID, pageID := range existing {
		if live[txID] {
			continue
		}
		if dryRun {
			log.Info().Str("transaction_id", txID).Msg("[DRY RUN] Would archive page")
		} else if err := notion.ArchivePage(ctx, pageID); err != nil {
			return report, fmt.Errorf("SyncVault: archiving page %s: %w", pageID, err)
		}
		report.Archived++
	}

	log.Info().
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("archived", report.Archived).
		Msg("Notion sync completed")

	return report, nil
}

// queryVaultPages pages through the database and returns every page that
// belongs to vaultID.
func queryVaultPages(ctx context.Context, notion NotionService, databaseID, vaultID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter: notionapi.PropertyFilter{
				Property: PropVaultID,
				RichText: &notionapi.TextFilterCondition{Equals: vaultID},
			},
			PageSize: pageSize,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notion.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryVaultPages: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return all, nil
}

// ServiceReader adapts vaults.Service to VaultReader.
type ServiceReader struct {
	Vaults *vaults.Service
}

// Transactions implements VaultReader.
func (r ServiceReader) Transactions(ctx context.Context, vaultID string) ([]ledger.TransactionRecord, error) {
	var out []ledger.TransactionRecord
	err := r.Vaults.View(ctx, vaultID, func(v *ledger.Vault) error {
		out = v.Transactions()
		return nil
	})
	return out, err
}

// CategoryNames implements VaultReader.
func (r ServiceReader) CategoryNames(ctx context.Context, vaultID string) (map[string]string, error) {
	cats, err := r.Vaults.Categories().ListCategories(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}
