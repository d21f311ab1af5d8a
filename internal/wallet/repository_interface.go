package wallet

import "context"

type Repository interface {
	CreateWallet(ctx context.Context, ownerID int64) (*Wallet, error)
	GetWallet(ctx context.Context, ownerID int64) (*Wallet, error)
	// GetWalletForUpdate locks the wallet row until the surrounding transaction ends.
	GetWalletForUpdate(ctx context.Context, ownerID int64) (*Wallet, error)
	UpdateBalance(ctx context.Context, w *Wallet) error
	// AppendEntry returns ErrAlreadySettled when e.ExternalRef is already on the ledger.
	AppendEntry(ctx context.Context, e *Entry) error
	GetEntryByRef(ctx context.Context, externalRef string) (*Entry, error)
	// ListEntries returns the ledger newest first.
	ListEntries(ctx context.Context, ownerID int64) ([]Entry, error)
	SumSucceeded(ctx context.Context, ownerID int64) (int64, error)
}
