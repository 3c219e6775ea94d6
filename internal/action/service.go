package action

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/vault-ledger/internal/categorize"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/vaults"
	"github.com/google/uuid"
)

// Service runs the propose, approve and cancel lifecycle of actions.
type Service struct {
	store  Store
	parser categorize.ActionParser
	vaults *vaults.Service
	locks  vaults.KeyedMutex
	now    func() time.Time
}

func NewService(store Store, parser categorize.ActionParser, vaults *vaults.Service) *Service {
	return &Service{
		store:  store,
		parser: parser,
		vaults: vaults,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Propose asks the classifier to read text as a transaction and stores the
// result as a pending action. Nothing is written to the vault yet.
func (s *Service) Propose(ctx context.Context, vaultID, text string) (*Action, error) {
	ctx, log := logger.ForVault(ctx, vaultID)

	if s.parser == nil {
		return nil, fmt.Errorf("Propose: %w: no classifier configured", categorize.ErrClassificationFailed)
	}

	var prompt string
	if err := s.vaults.View(ctx, vaultID, func(v *ledger.Vault) error {
		prompt = v.CustomPrompt()
		return nil
	}); err != nil {
		return nil, fmt.Errorf("Propose: %w", err)
	}

	categories, err := s.vaults.Categories().ListCategories(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("Propose: listing categories: %w", err)
	}

	proposal, err := s.parser.ParseAction(ctx, text, categories, prompt)
	if err != nil {
		return nil, fmt.Errorf("Propose: %w", err)
	}
	if !proposal.Matched {
		return nil, ErrNoMatch
	}

	categoryID := ""
	if proposal.CategoryID != "" {
		if c, ok := categorize.NewCategoryValidator(categories).Resolve(proposal.CategoryID); ok && c.Accepts(proposal.Kind) {
			categoryID = c.ID
		} else {
			log.Warn().Str("category_id", proposal.CategoryID).Str("kind", string(proposal.Kind)).Msg("classifier proposed an unknown or mismatched category")
		}
	}

	payload, err := NewPayload(vaults.Draft{
		Amount:      proposal.Amount,
		Kind:        proposal.Kind,
		Description: proposal.Description,
		CategoryID:  categoryID,
		Date:        s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("Propose: %w", err)
	}

	a := &Action{
		ID:        uuid.NewString(),
		VaultID:   vaultID,
		Payload:   payload,
		CreatedAt: s.now(),
		Status:    StatusPending,
	}
	if err := s.store.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("Propose: %w", err)
	}

	log.Info().Str("action_id", a.ID).Str("type", string(a.Type())).Msg("action proposed")
	return a, nil
}

// Get returns an action of the vault.
func (s *Service) Get(ctx context.Context, vaultID, id string) (*Action, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.VaultID != vaultID {
		return nil, fmt.Errorf("Get: action %s: %w", id, ledger.ErrNotFound)
	}
	return a, nil
}

// Execute adds the proposed transaction to the vault as committed. An
// action runs at most once: a failed execution ends in StatusFailed and is
// not retried.
func (s *Service) Execute(ctx context.Context, vaultID, id string) (*Action, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	a, err := s.pending(ctx, vaultID, id)
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}

	log := logger.FromContext(ctx).With().Str("vault_id", vaultID).Str("action_id", id).Logger()

	rec, execErr := s.vaults.AddTransaction(ctx, vaultID, a.Payload.Draft(), true)
	if execErr != nil {
		a.Status = StatusFailed
		a.Error = execErr.Error()
		log.Error().Err(execErr).Msg("action failed")
	} else {
		a.Status = StatusExecuted
		a.TransactionID = rec.ID
		log.Info().Str("transaction_id", rec.ID).Msg("action executed")
	}

	if err := s.store.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}
	if execErr != nil {
		return a, fmt.Errorf("Execute: %w", execErr)
	}
	return a, nil
}

// Cancel moves a pending action to StatusCancelled.
func (s *Service) Cancel(ctx context.Context, vaultID, id string) (*Action, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	a, err := s.pending(ctx, vaultID, id)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	a.Status = StatusCancelled
	if err := s.store.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("vault_id", vaultID).Str("action_id", id).Msg("action cancelled")
	return a, nil
}

func (s *Service) pending(ctx context.Context, vaultID, id string) (*Action, error) {
	a, err := s.Get(ctx, vaultID, id)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, fmt.Errorf("action %s is %s: %w", id, a.Status, ErrNotPending)
	}
	return a, nil
}
