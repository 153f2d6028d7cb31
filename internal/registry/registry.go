package registry

import "sync"

// Callback receives a watched account's new state. data is nil when the
// account does not exist at that slot. Callbacks run inline during
// reconciliation and must not block.
type Callback func(data []byte, slot uint64)

// WatchedAccount is an address with its registered callbacks.
type WatchedAccount struct {
	Address   string
	Callbacks map[int]Callback
}

// Registry tracks watched accounts and their callbacks.
type Registry struct {
	mu       sync.Mutex
	accounts map[string]*WatchedAccount
	order    []string // insertion order, for stable snapshots
	nextID   int
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		accounts: make(map[string]*WatchedAccount),
	}
}

// Register adds a callback for the given address, creating the watch entry
// if the address is new. It returns the assigned callback id and whether the
// registry was empty before this call (the caller uses that to start the
// polling loop exactly once).
func (r *Registry) Register(address string, cb Callback) (id int, wasEmpty bool, err error) {
	if address == "" {
		return 0, false, ErrEmptyAddress
	}
	if cb == nil {
		return 0, false, ErrNilCallback
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wasEmpty = len(r.accounts) == 0

	id = r.nextID
	r.nextID++

	if acct, ok := r.accounts[address]; ok {
		acct.Callbacks[id] = cb
	} else {
		r.accounts[address] = &WatchedAccount{
			Address:   address,
			Callbacks: map[int]Callback{id: cb},
		}
		r.order = append(r.order, address)
	}

	return id, wasEmpty, nil
}

// Snapshot returns a consistent copy of the watched accounts in registration
// order. Registrations racing with a snapshot are picked up by the next one.
func (r *Registry) Snapshot() []WatchedAccount {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]WatchedAccount, 0, len(r.order))
	for _, addr := range r.order {
		acct := r.accounts[addr]
		cbs := make(map[int]Callback, len(acct.Callbacks))
		for id, cb := range acct.Callbacks {
			cbs[id] = cb
		}
		out = append(out, WatchedAccount{Address: acct.Address, Callbacks: cbs})
	}
	return out
}

// Len returns the number of watched addresses.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}
