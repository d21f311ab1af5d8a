// Package memstore keeps tickets, wallets and refund requests in process
// memory. Every transaction holds one store-wide lock and rolls back by
// restoring a snapshot, so it serialises exactly like row locks would for a
// single instance.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/refund"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/ticket"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/wallet"
)

type Route struct {
	StartTerminalID int64
	EndTerminalID   int64
}

type Rider struct {
	FullName  string
	Email     string
	PushToken string
}

type state struct {
	tickets      map[int64]ticket.Ticket
	nextTicketID int64
	wallets      map[int64]wallet.Wallet
	entries      []wallet.Entry
	nextEntryID  int64
	refunds      map[int64]refund.Request
	nextRefundID int64
	routes       map[int64]Route
	riders       map[int64]Rider
}

func newState() *state {
	return &state{
		tickets: make(map[int64]ticket.Ticket),
		wallets: make(map[int64]wallet.Wallet),
		refunds: make(map[int64]refund.Request),
		routes:  make(map[int64]Route),
		riders:  make(map[int64]Rider),
	}
}

func (s *state) clone() *state {
	c := &state{
		tickets:      make(map[int64]ticket.Ticket, len(s.tickets)),
		nextTicketID: s.nextTicketID,
		wallets:      make(map[int64]wallet.Wallet, len(s.wallets)),
		entries:      append([]wallet.Entry(nil), s.entries...),
		nextEntryID:  s.nextEntryID,
		refunds:      make(map[int64]refund.Request, len(s.refunds)),
		nextRefundID: s.nextRefundID,
		routes:       make(map[int64]Route, len(s.routes)),
		riders:       make(map[int64]Rider, len(s.riders)),
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.refunds {
		c.refunds[k] = v
	}
	for k, v := range s.routes {
		c.routes[k] = v
	}
	for k, v := range s.riders {
		c.riders[k] = v
	}
	return c
}

type txKey struct{}

type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

func New() *Store {
	return &Store{
		data: newState(),
		now:  time.Now,
	}
}

// SetClock replaces the clock used for created_at and updated_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// WithinTx implements db.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// run gives fn the current state, taking the store lock unless ctx already
// belongs to a transaction on this store.
func (s *Store) run(ctx context.Context, fn func(st *state) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(s.data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) AddRoute(id int64, route Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.routes[id] = route
}

func (s *Store) AddRider(id int64, rider Rider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.riders[id] = rider
}

func (s *Store) Tickets() ticket.Repository {
	return &ticketRepository{store: s}
}

func (s *Store) Wallets() wallet.Repository {
	return &walletRepository{store: s}
}

func (s *Store) Refunds() refund.Repository {
	return &refundRepository{store: s}
}

// PushToken implements notify.PushTokens.
func (s *Store) PushToken(ctx context.Context, ownerID int64) (string, error) {
	var token string
	err := s.run(ctx, func(st *state) error {
		token = st.riders[ownerID].PushToken
		return nil
	})
	return token, err
}
