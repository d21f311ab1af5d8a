package memstore

import (
	"context"
	"errors"
	"sort"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/wallet"
)

var errNegativeBalance = errors.New("wallets_balance_cents_check: balance would become negative")

type walletRepository struct {
	store *Store
}

func (r *walletRepository) CreateWallet(ctx context.Context, ownerID int64) (*wallet.Wallet, error) {
	var out *wallet.Wallet
	err := r.store.run(ctx, func(st *state) error {
		if _, ok := st.wallets[ownerID]; ok {
			return wallet.ErrWalletExists
		}
		now := r.store.now()
		w := wallet.Wallet{OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
		st.wallets[ownerID] = w
		out = &w
		return nil
	})
	return out, err
}

func (r *walletRepository) GetWallet(ctx context.Context, ownerID int64) (*wallet.Wallet, error) {
	var out *wallet.Wallet
	err := r.store.run(ctx, func(st *state) error {
		w, ok := st.wallets[ownerID]
		if !ok {
			return wallet.ErrWalletNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r *walletRepository) GetWalletForUpdate(ctx context.Context, ownerID int64) (*wallet.Wallet, error) {
	return r.GetWallet(ctx, ownerID)
}

func (r *walletRepository) UpdateBalance(ctx context.Context, w *wallet.Wallet) error {
	return r.store.run(ctx, func(st *state) error {
		stored, ok := st.wallets[w.OwnerID]
		if !ok {
			return wallet.ErrWalletNotFound
		}
		if w.BalanceCents < 0 {
			return errNegativeBalance
		}
		stored.BalanceCents = w.BalanceCents
		stored.UpdatedAt = r.store.now()
		st.wallets[w.OwnerID] = stored
		w.UpdatedAt = stored.UpdatedAt
		return nil
	})
}

func (r *walletRepository) AppendEntry(ctx context.Context, e *wallet.Entry) error {
	return r.store.run(ctx, func(st *state) error {
		if _, ok := st.wallets[e.OwnerID]; !ok {
			return wallet.ErrWalletNotFound
		}
		if e.ExternalRef != nil {
			if _, ok := findByRef(st, *e.ExternalRef); ok {
				return wallet.ErrAlreadySettled
			}
		}
		st.nextEntryID++
		e.ID = st.nextEntryID
		e.CreatedAt = r.store.now()
		st.entries = append(st.entries, *e)
		return nil
	})
}

func (r *walletRepository) GetEntryByRef(ctx context.Context, externalRef string) (*wallet.Entry, error) {
	var out *wallet.Entry
	err := r.store.run(ctx, func(st *state) error {
		e, ok := findByRef(st, externalRef)
		if !ok {
			return wallet.ErrEntryNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

func findByRef(st *state, ref string) (wallet.Entry, bool) {
	for _, e := range st.entries {
		if e.ExternalRef != nil && *e.ExternalRef == ref {
			return e, true
		}
	}
	return wallet.Entry{}, false
}

func (r *walletRepository) ListEntries(ctx context.Context, ownerID int64) ([]wallet.Entry, error) {
	var out []wallet.Entry
	err := r.store.run(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.OwnerID == ownerID {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func (r *walletRepository) SumSucceeded(ctx context.Context, ownerID int64) (int64, error) {
	var sum int64
	err := r.store.run(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.OwnerID == ownerID && e.Outcome == wallet.OutcomeSucceeded {
				sum += e.AmountCents
			}
		}
		return nil
	})
	return sum, err
}
