package repository

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/models"
)

const pendingPrefix = "pending_payment/"

// DefaultPendingTTL bounds how long an abandoned attempt stays resumable.
const DefaultPendingTTL = 24 * time.Hour

// PendingStore keeps in-flight payment attempts in an embedded Badger DB so
// an abandoned checkout survives a process restart. The store is advisory:
// the escrow repository stays authoritative, so every operation here fails
// soft: errors are logged and degrade to an empty result or no-op rather
// than breaking the payment flow.
type PendingStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger *zap.Logger
}

func NewPendingStore(db *badger.DB, ttl time.Duration, logger *zap.Logger) *PendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &PendingStore{db: db, ttl: ttl, logger: logger}
}

// Entries returns all stored pending payments ordered by creation time.
// Storage trouble yields an empty slice.
func (s *PendingStore) Entries() []models.PendingPayment {
	var out []models.PendingPayment
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry models.PendingPayment
				if err := json.Unmarshal(val, &entry); err != nil {
					// Corrupt entry: skip it, keep the rest readable.
					s.logger.Warn("Skipping unparsable pending payment", zap.Error(err))
					return nil
				}
				out = append(out, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to read pending payments", zap.Error(err))
		return nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoredAt.Before(out[j].StoredAt) })
	return out
}

// Save upserts an entry, removing any stored entry sharing its payment id
// or transaction reference first. After the call no two entries share
// either key.
func (s *PendingStore) Save(entry models.PendingPayment) {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, existing := range s.entriesIn(txn) {
			if (entry.PaymentID != "" && existing.PaymentID == entry.PaymentID) ||
				(entry.TxRef != "" && existing.TxRef == entry.TxRef) {
				if err := txn.Delete(pendingKey(existing)); err != nil {
					return err
				}
			}
		}
		return s.setEntry(txn, entry)
	})
	if err != nil {
		s.logger.Error("Failed to save pending payment",
			zap.String("payment_id", entry.PaymentID),
			zap.Error(err),
		)
	}
}

// Update merges patch into the entry matching paymentID and returns the
// updated entry, or nil if no entry matches.
func (s *PendingStore) Update(paymentID string, patch models.PendingPaymentPatch) *models.PendingPayment {
	var updated *models.PendingPayment
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, existing := range s.entriesIn(txn) {
			if existing.PaymentID != paymentID {
				continue
			}
			if patch.TxRef != "" && patch.TxRef != existing.TxRef {
				if err := txn.Delete(pendingKey(existing)); err != nil {
					return err
				}
				existing.TxRef = patch.TxRef
			}
			if patch.Status != "" {
				existing.Status = patch.Status
			}
			if patch.CheckoutURL != "" {
				existing.CheckoutURL = patch.CheckoutURL
			}
			if err := s.setEntry(txn, existing); err != nil {
				return err
			}
			updated = &existing
			return nil
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update pending payment",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return nil
	}
	return updated
}

// Remove deletes the entry matching paymentID. Removing an absent entry is
// a no-op.
func (s *PendingStore) Remove(paymentID string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, existing := range s.entriesIn(txn) {
			if existing.PaymentID == paymentID {
				if err := txn.Delete(pendingKey(existing)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to remove pending payment",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
	}
}

// FindForItem returns the stored entry matching the escrow, property or
// investment id, preferring an escrow id match. Used to resume an
// abandoned checkout instead of initializing a second attempt. A non-empty
// buyerID excludes other buyers' attempts: the store is shared, so an item
// match alone must never hand one buyer another buyer's checkout.
func (s *PendingStore) FindForItem(buyerID, escrowID, propertyID, investmentID string) *models.PendingPayment {
	var fallback *models.PendingPayment
	for _, entry := range s.Entries() {
		entry := entry
		if buyerID != "" && entry.BuyerID != buyerID {
			continue
		}
		if escrowID != "" && entry.EscrowID == escrowID {
			return &entry
		}
		if fallback == nil &&
			((propertyID != "" && entry.PropertyID == propertyID) ||
				(investmentID != "" && entry.InvestmentID == investmentID)) {
			fallback = &entry
		}
	}
	return fallback
}

func (s *PendingStore) setEntry(txn *badger.Txn, entry models.PendingPayment) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	e := badger.NewEntry(pendingKey(entry), val).WithTTL(s.ttl)
	return txn.SetEntry(e)
}

func (s *PendingStore) entriesIn(txn *badger.Txn) []models.PendingPayment {
	var out []models.PendingPayment
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(pendingPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		_ = it.Item().Value(func(val []byte) error {
			var entry models.PendingPayment
			if err := json.Unmarshal(val, &entry); err == nil {
				out = append(out, entry)
			}
			return nil
		})
	}
	return out
}

func pendingKey(entry models.PendingPayment) []byte {
	id := entry.PaymentID
	if id == "" {
		id = entry.TxRef
	}
	return []byte(pendingPrefix + id)
}
