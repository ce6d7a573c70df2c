package core

// dedupe.go filters candidates that already exist for an account and stores
// the rest as one batch. Classification runs over records fetched up front;
// only the final insert touches storage transactionally.

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DuplicatePolicy decides which transactions are the same record. Two
// transactions are duplicates when their keys are equal.
type DuplicatePolicy interface {
	Key(tx Transaction) string
}

// DefaultDuplicatePolicy keys on account, UTC calendar date, amount to two
// decimals, and the normalized name and description.
type DefaultDuplicatePolicy struct{}

func (DefaultDuplicatePolicy) Key(tx Transaction) string {
	return strings.Join([]string{
		tx.AccountID.String(),
		DateOnly(tx.Date).Format(time.DateOnly),
		tx.Amount.StringFixed(AmountScale),
		normalizeText(tx.Name),
		normalizeText(tx.Description),
	}, "\x1f")
}

// normalizeText lower-cases s and collapses runs of whitespace.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// InsertResult reports what BatchInserter did with a candidate list.
type InsertResult struct {
	Created    []Transaction
	Duplicates int
}

// BatchInserter stores candidates that do not duplicate existing records.
type BatchInserter struct {
	store  TransactionStore
	policy DuplicatePolicy
}

// NewBatchInserter uses DefaultDuplicatePolicy when policy is nil.
func NewBatchInserter(store TransactionStore, policy DuplicatePolicy) *BatchInserter {
	if policy == nil {
		policy = DefaultDuplicatePolicy{}
	}
	return &BatchInserter{store: store, policy: policy}
}

// Insert classifies candidates against stored records of their account and
// persists the non-duplicates with a single AddRange. Candidates repeated
// within the same list are not duplicates of each other. A storage failure
// is returned wrapped in ErrStorage and nothing is reported as created.
func (b *BatchInserter) Insert(ctx context.Context, candidates []Transaction) (InsertResult, error) {
	if len(candidates) == 0 {
		return InsertResult{}, nil
	}

	fresh, dupes, err := b.Classify(ctx, candidates)
	if err != nil {
		return InsertResult{}, err
	}

	if len(fresh) > 0 {
		if err := b.store.AddRange(ctx, fresh); err != nil {
			return InsertResult{}, fmt.Errorf("%w: insert %d transactions for account %s: %w",
				ErrStorage, len(fresh), fresh[0].AccountID, err)
		}
	}
	return InsertResult{Created: fresh, Duplicates: dupes}, nil
}

// Classify splits candidates into fresh records and a duplicate count. All
// candidates must belong to the same account.
func (b *BatchInserter) Classify(ctx context.Context, candidates []Transaction) ([]Transaction, int, error) {
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	from, to := dateSpan(candidates)
	existing, err := b.store.ListByAccount(ctx, candidates[0].AccountID, from, to)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list existing transactions: %w", ErrStorage, err)
	}

	known := make(map[string]struct{}, len(existing))
	for _, tx := range existing {
		known[b.policy.Key(tx)] = struct{}{}
	}

	fresh := make([]Transaction, 0, len(candidates))
	dupes := 0
	for _, c := range candidates {
		if _, ok := known[b.policy.Key(c)]; ok {
			dupes++
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, dupes, nil
}

// dateSpan returns the first and last UTC day covered by txs.
func dateSpan(txs []Transaction) (time.Time, time.Time) {
	from, to := DateOnly(txs[0].Date), DateOnly(txs[0].Date)
	for _, tx := range txs[1:] {
		d := DateOnly(tx.Date)
		if d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}
	return from, to
}
