// Package idgen hands out entity identifiers from a persisted counter and
// mints proof codes of the form "{companyID}-{random}-{sequence}".
//
// Uniqueness of a code comes from the per-company sequence, which is
// reserved before any randomness is drawn. Unguessability comes from the
// random segment, which is drawn from a cryptographically secure source and
// never from a fallback.
package idgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strconv"

	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/gartstein/proofly/internal/proof/store"
	"go.uber.org/zap"
)

const (
	// Alphabet omits 0, O, 1, l and I.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"
	// MinCodeLength is the shortest random segment the generator will mint.
	MinCodeLength = 10

	entityCounterKey = "entity"
	// maxRandomRounds bounds rejection sampling against a broken source.
	maxRandomRounds = 16
)

// acceptBelow is the largest multiple of len(Alphabet) that fits in a byte;
// bytes at or above it are rejected to keep the symbol distribution uniform.
var acceptBelow = byte(256 / len(Alphabet) * len(Alphabet))

// Randomness is a source of cryptographically secure random bytes.
type Randomness interface {
	Read(p []byte) (int, error)
}

// Generator mints identifiers and proof codes.
type Generator struct {
	store      store.Store
	random     Randomness
	codeLength int
	logger     *zap.Logger
}

// NewGenerator builds a Generator. A nil random source selects crypto/rand;
// code lengths below MinCodeLength are raised to it.
func NewGenerator(st store.Store, random Randomness, codeLength int, logger *zap.Logger) *Generator {
	if random == nil {
		random = rand.Reader
	}
	if codeLength < MinCodeLength {
		codeLength = MinCodeLength
	}
	return &Generator{
		store:      st,
		random:     random,
		codeLength: codeLength,
		logger:     logger.Named("idgen"),
	}
}

// NextID reserves the next entity identifier in its own transaction.
func (g *Generator) NextID(ctx context.Context) (uint64, error) {
	var id uint64
	err := g.store.Txn(ctx, func(tx store.Tx) error {
		var err error
		id, err = g.NextIDTx(tx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate id: %w", err)
	}
	return id, nil
}

// NextIDTx reserves the next entity identifier inside the caller's
// transaction, so the id and the record using it commit together.
func (g *Generator) NextIDTx(tx store.Tx) (uint64, error) {
	return store.Increment(tx, entityCounterKey)
}

// MintCode reserves the next proof sequence for the company and then builds
// a code around a fresh random segment. attempt identifies a retry after a
// ledger collision; each attempt reserves a new sequence.
func (g *Generator) MintCode(ctx context.Context, companyID, employeeID uint64, attempt int) (string, error) {
	var seq uint64
	err := g.store.Txn(ctx, func(tx store.Tx) error {
		var err error
		seq, err = store.Increment(tx, sequenceKey(companyID))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to reserve proof sequence: %w", err)
	}

	segment, err := g.randomSegment()
	if err != nil {
		g.logger.Error("Secure randomness unavailable",
			zap.Error(err),
			zap.Uint64("company_id", companyID),
			zap.Uint64("employee_id", employeeID),
		)
		return "", err
	}

	if attempt > 0 {
		g.logger.Info("Minted retry code",
			zap.Uint64("company_id", companyID),
			zap.Uint64("sequence", seq),
			zap.Int("attempt", attempt),
		)
	}
	return FormatCode(companyID, segment, seq), nil
}

// FormatCode joins the code parts with '-'.
func FormatCode(companyID uint64, segment string, seq uint64) string {
	return strconv.FormatUint(companyID, 10) + "-" + segment + "-" + strconv.FormatUint(seq, 10)
}

func sequenceKey(companyID uint64) string {
	return "proof:" + store.IDKey(companyID)
}

// randomSegment draws codeLength symbols by rejection sampling.
func (g *Generator) randomSegment() (string, error) {
	out := make([]byte, 0, g.codeLength)
	buf := make([]byte, g.codeLength*2)

	for round := 0; round < maxRandomRounds && len(out) < g.codeLength; round++ {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("%w: %v", e.ErrRandomnessUnavailable, err)
		}
		for _, b := range buf {
			if b >= acceptBelow {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == g.codeLength {
				break
			}
		}
	}
	if len(out) < g.codeLength {
		return "", fmt.Errorf("%w: source yielded too few usable bytes", e.ErrRandomnessUnavailable)
	}
	return string(out), nil
}
