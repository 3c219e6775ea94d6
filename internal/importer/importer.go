// Package importer turns bank statements into committed vault transactions.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/vault-ledger/internal/categorize"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/statement"
	"github.com/dvloznov/vault-ledger/internal/store"
	"github.com/dvloznov/vault-ledger/internal/vaults"
)

// Categorizer assigns categories to a batch of transactions.
type Categorizer interface {
	Categorize(ctx context.Context, txs []categorize.TransactionInput, categories []ledger.Category, contextPrompt string) (*categorize.Result, error)
}

// Report summarizes one import.
type Report struct {
	Imported      int `json:"imported"`
	Categorized   int `json:"categorized"`
	Uncategorized int `json:"uncategorized"`
	FailedChunks  int `json:"failed_chunks"`
}

type Importer struct {
	vaults      *vaults.Service
	categories  store.CategorySource
	categorizer Categorizer
	source      statement.Source
}

func New(vaults *vaults.Service, categories store.CategorySource, categorizer Categorizer, source statement.Source) *Importer {
	return &Importer{
		vaults:      vaults,
		categories:  categories,
		categorizer: categorizer,
		source:      source,
	}
}

// ImportURI fetches and parses a CSV statement, then imports it.
func (im *Importer) ImportURI(ctx context.Context, vaultID, uri string) (*Report, error) {
	if im.source == nil {
		return nil, fmt.Errorf("ImportURI: no statement source configured")
	}
	data, err := im.source.Fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("ImportURI: %w", err)
	}
	lines, err := statement.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ImportURI: parse %s: %w", statement.FileName(uri), err)
	}
	return im.Import(ctx, vaultID, lines)
}

// Import categorizes lines and adds each one to the vault as a committed
// transaction. Transactions the classifier could not place are still
// imported, uncategorized, even when every chunk failed. Nothing is written
// when the classifier cannot be reached at all.
func (im *Importer) Import(ctx context.Context, vaultID string, lines []statement.Line) (*Report, error) {
	ctx, log := logger.ForVault(ctx, vaultID)

	if len(lines) == 0 {
		return &Report{}, nil
	}

	var prompt string
	err := im.vaults.View(ctx, vaultID, func(v *ledger.Vault) error {
		prompt = v.CustomPrompt()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}

	drafts := make([]*ledger.Transaction, 0, len(lines))
	inputs := make([]categorize.TransactionInput, 0, len(lines))
	for i, line := range lines {
		tx, err := ledger.NewTransaction(line.Amount, line.Kind, line.Description, "", line.Date, vaultID)
		if err != nil {
			return nil, fmt.Errorf("Import: line %d: %w", i+1, err)
		}
		drafts = append(drafts, tx)
		inputs = append(inputs, categorize.TransactionInput{
			ID:          tx.ID(),
			Description: tx.Description(),
			Amount:      tx.Amount(),
			Kind:        tx.Kind(),
		})
	}

	categories, err := im.categories.ListCategories(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("Import: %w: listing categories: %v", categorize.ErrPipelineFailed, err)
	}

	result, err := im.categorizer.Categorize(ctx, inputs, categories, prompt)
	if err != nil {
		if !errors.Is(err, categorize.ErrPipelineFailed) {
			err = fmt.Errorf("%w: %v", categorize.ErrPipelineFailed, err)
		}
		log.Error().Err(err).Int("transactions", len(drafts)).Msg("import aborted")
		return nil, fmt.Errorf("Import: %w", err)
	}

	report := &Report{FailedChunks: result.FailedChunks}
	err = im.vaults.WithVault(ctx, vaultID, func(v *ledger.Vault) error {
		for _, tx := range drafts {
			if categoryID, ok := result.Assignments[tx.ID()]; ok {
				tx.SetCategory(categoryID)
				report.Categorized++
			} else {
				report.Uncategorized++
			}
			if err := v.AddTransaction(tx); err != nil {
				return err
			}
			if err := v.CommitTransaction(tx.ID()); err != nil {
				return err
			}
			report.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}

	log.Info().
		Int("imported", report.Imported).
		Int("categorized", report.Categorized).
		Int("uncategorized", report.Uncategorized).
		Int("failed_chunks", report.FailedChunks).
		Msg("statement imported")
	return report, nil
}
