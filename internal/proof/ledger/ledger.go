// Package ledger records issued proofs and consumes them exactly once.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/gartstein/proofly/internal/proof/membership"
	"github.com/gartstein/proofly/internal/proof/models"
	"github.com/gartstein/proofly/internal/proof/store"
	"go.uber.org/zap"
)

const (
	DefaultProofValidity   = 24 * time.Hour
	DefaultMaxMintAttempts = 3
)

// Config holds the ledger tunables.
type Config struct {
	// ProofValidity is how long an issued proof stays verifiable.
	ProofValidity time.Duration
	// MaxMintAttempts bounds regeneration after a code collision.
	MaxMintAttempts int
}

// CodeMinter produces candidate proof codes.
type CodeMinter interface {
	MintCode(ctx context.Context, companyID, employeeID uint64, attempt int) (string, error)
}

// Ledger is the proof ledger.
type Ledger struct {
	store  store.Store
	minter CodeMinter
	cfg    Config
	logger *zap.Logger
}

// NewLedger constructs a Ledger. Zero config values select the defaults.
func NewLedger(st store.Store, minter CodeMinter, cfg Config, logger *zap.Logger) *Ledger {
	if cfg.ProofValidity <= 0 {
		cfg.ProofValidity = DefaultProofValidity
	}
	if cfg.MaxMintAttempts <= 0 {
		cfg.MaxMintAttempts = DefaultMaxMintAttempts
	}
	return &Ledger{
		store:  st,
		minter: minter,
		cfg:    cfg,
		logger: logger.Named("ledger"),
	}
}

// Issue creates a proof for a current member of an active company, valid
// until now plus the configured validity.
func (l *Ledger) Issue(ctx context.Context, companyID, employeeID uint64, now time.Time) (*models.Proof, error) {
	return l.IssueWithExpiry(ctx, companyID, employeeID, now, now.Add(l.cfg.ProofValidity))
}

// IssueWithExpiry is Issue with an explicit expiry instant.
func (l *Ledger) IssueWithExpiry(ctx context.Context, companyID, employeeID uint64, now, expiresAt time.Time) (*models.Proof, error) {
	// Fail fast before a sequence number is spent.
	if err := l.store.View(ctx, func(tx store.Tx) error {
		return checkIssuable(tx, companyID, employeeID)
	}); err != nil {
		return nil, fmt.Errorf("failed to issue proof: %w", err)
	}

	for attempt := 0; attempt < l.cfg.MaxMintAttempts; attempt++ {
		code, err := l.minter.MintCode(ctx, companyID, employeeID, attempt)
		if err != nil {
			if errors.Is(err, e.ErrRandomnessUnavailable) {
				return nil, fmt.Errorf("%w: %w", e.ErrGenerationExhausted, err)
			}
			return nil, fmt.Errorf("failed to mint code: %w", err)
		}

		proof := &models.Proof{
			Code:       code,
			CompanyID:  companyID,
			EmployeeID: employeeID,
			CreatedAt:  now.UTC(),
			ExpiresAt:  expiresAt.UTC(),
		}

		inserted := false
		err = l.store.Txn(ctx, func(tx store.Tx) error {
			inserted = false
			// Membership may have changed since the fast-path check.
			if err := checkIssuable(tx, companyID, employeeID); err != nil {
				return err
			}
			if _, exists, err := tx.Get(store.Proofs, code); err != nil || exists {
				return err
			}
			inserted = true
			return store.PutProof(tx, proof)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to issue proof: %w", err)
		}
		if inserted {
			l.logger.Info("Proof issued",
				zap.Uint64("company_id", companyID),
				zap.Uint64("employee_id", employeeID),
				zap.Time("expires_at", proof.ExpiresAt),
			)
			return proof, nil
		}

		l.logger.Warn("Proof code collision, regenerating",
			zap.Uint64("company_id", companyID),
			zap.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("%w: %d attempts collided", e.ErrGenerationExhausted, l.cfg.MaxMintAttempts)
}

// VerifyAndConsume presents a code. At most one caller ever receives a
// valid result for a given code. Expired proofs are reported as expired and
// left unused. Store failures are returned as errors, never as an invalid
// result.
func (l *Ledger) VerifyAndConsume(ctx context.Context, code string, now time.Time) (models.VerifyResult, error) {
	var result models.VerifyResult
	err := l.store.Txn(ctx, func(tx store.Tx) error {
		proof, err := store.GetProof(tx, code)
		switch {
		case errors.Is(err, e.ErrNotFound):
			result = models.Invalid(models.ReasonNotFound)
			return nil
		case err != nil:
			return err
		}

		switch {
		case proof.IsExpired(now):
			result = models.Invalid(models.ReasonExpired)
			return nil
		case proof.IsUsed:
			result = models.Invalid(models.ReasonAlreadyUsed)
			return nil
		}

		proof.IsUsed = true
		if err := store.PutProof(tx, proof); err != nil {
			return err
		}
		result = models.Valid(proof.CompanyID, proof.EmployeeID)
		return nil
	})
	if err != nil {
		l.logger.Error("Proof verification failed", zap.Error(err))
		return models.VerifyResult{}, fmt.Errorf("failed to verify proof: %w", err)
	}
	return result, nil
}

// Peek returns the proof without consuming it.
func (l *Ledger) Peek(ctx context.Context, code string) (*models.Proof, error) {
	var proof *models.Proof
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		proof, err = store.GetProof(tx, code)
		return err
	})
	return proof, err
}

func checkIssuable(tx store.Tx, companyID, employeeID uint64) error {
	company, err := store.GetCompany(tx, companyID)
	if err != nil {
		return err
	}
	if !company.IsActive {
		return fmt.Errorf("company %d: %w", companyID, e.ErrCompanyInactive)
	}
	if _, err := store.GetEmployee(tx, employeeID); err != nil {
		return err
	}
	member, err := membership.IsMemberTx(tx, companyID, employeeID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("employee %d is not a member of company %d: %w", employeeID, companyID, e.ErrUnauthorized)
	}
	return nil
}
