package paxosloop

import "sync"

// MemoryAcceptor is an in-process Acceptor: a promise/accept ledger keyed
// by instance id, guarded by its own lock so a Loop may address several
// of these concurrently to form a quorum.
type MemoryAcceptor struct {
	mu sync.Mutex
	// promised is the highest ballot this acceptor has promised not to
	// go below, per instance.
	promised map[uint64]uint64
	// accepted is the highest ballot/value this acceptor has accepted,
	// per instance.
	accepted map[uint64]acceptedState
}

type acceptedState struct {
	ballot uint64
	value  []byte
}

// NewMemoryAcceptor returns an empty acceptor with no promises or
// acceptances recorded.
func NewMemoryAcceptor() *MemoryAcceptor {
	return &MemoryAcceptor{
		promised: make(map[uint64]uint64),
		accepted: make(map[uint64]acceptedState),
	}
}

// Prepare promises not to accept any ballot below ballot for instanceID,
// provided ballot is higher than any promise already made. It reports
// its previously accepted value, if any, so a quorum-winning proposer
// can adopt it instead of its own.
func (a *MemoryAcceptor) Prepare(instanceID uint64, ballot uint64) (promised bool, acceptedBallot uint64, acceptedValue []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ballot <= a.promised[instanceID] {
		return false, a.promised[instanceID], nil
	}
	a.promised[instanceID] = ballot

	if st, ok := a.accepted[instanceID]; ok {
		return true, st.ballot, st.value
	}
	return true, 0, nil
}

// Accept records value under ballot for instanceID, provided ballot has
// not been superseded by a later Prepare.
func (a *MemoryAcceptor) Accept(instanceID uint64, ballot uint64, value []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ballot < a.promised[instanceID] {
		return false
	}
	a.promised[instanceID] = ballot
	a.accepted[instanceID] = acceptedState{ballot: ballot, value: value}
	return true
}

// Commit is advisory: it lets an acceptor drop per-instance promise
// bookkeeping once a value is known chosen. This in-memory
// implementation keeps it for simplicity; a durable acceptor would use
// it to release its prepare/accept log for the instance.
func (a *MemoryAcceptor) Commit(instanceID uint64, value []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accepted[instanceID] = acceptedState{ballot: a.promised[instanceID], value: value}
}
