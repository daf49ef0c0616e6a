package bidstore

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu  sync.Mutex
	bid *PendingBid
}

func newMemoryStore() Store {
	return &memoryStore{}
}

func (m *memoryStore) Save(_ context.Context, bid PendingBid) error {
	if err := bid.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.bid = &bid
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Load(_ context.Context, currentContractAddress string) (PendingBid, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bid == nil {
		return PendingBid{}, false, nil
	}
	if !sameAddress(m.bid.ContractAddress, currentContractAddress) {
		m.bid = nil
		return PendingBid{}, false, nil
	}
	return *m.bid, true, nil
}

func (m *memoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.bid = nil
	m.mu.Unlock()
	return nil
}
