// Package smfac implements the concrete StateMachineRegistry: it packs a
// state-machine identifier into the value Paxos sees, and hosts the
// built-in master-lease state machine that the distilled example program
// (PhxElection) exercised.
package smfac

import (
	"encoding/binary"
	"sync"
	"time"

	logging "github.com/op/go-logging"

	"github.com/bdeggleston/paxoscommit/internal/paxoscore"
)

var logger = logging.MustGetLogger("smfac")

// StateMachine consumes values Paxos has chosen for one SM-id.
type StateMachine interface {
	Apply(instanceID uint64, value []byte, cookie interface{})
}

// headerSize is the width of the SM-id prefix PackValue prepends. The
// framing is this registry's private business -- Paxos and the Committer
// never interpret it.
const headerSize = 4

// Registry packs SM-ids into values and dispatches applied values to
// registered state machines. MasterStateMachineID is pre-registered.
type Registry struct {
	mu  sync.Mutex
	sms map[int32]StateMachine

	master *masterStateMachine
}

// New returns a Registry with the built-in master-lease state machine
// already registered under paxoscore.MasterStateMachineID.
func New() *Registry {
	r := &Registry{sms: make(map[int32]StateMachine)}
	r.master = newMasterStateMachine()
	r.sms[paxoscore.MasterStateMachineID] = r.master
	return r
}

// Register associates smID with sm. Registering over
// paxoscore.MasterStateMachineID or paxoscore.NoStateMachineID is
// rejected; both slots are reserved -- the former for the built-in
// master lease, the latter for submits with no SMContext at all.
func (r *Registry) Register(smID int32, sm StateMachine) bool {
	if smID == paxoscore.MasterStateMachineID || smID == paxoscore.NoStateMachineID {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sms[smID] = sm
	return true
}

// PackValue prepends a 4-byte big-endian SM-id header to value.
func (r *Registry) PackValue(value []byte, smID int32) []byte {
	packed := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint32(packed[:headerSize], uint32(smID))
	copy(packed[headerSize:], value)
	return packed
}

// Unpack splits a packed value back into its SM-id and payload. It is the
// inverse of PackValue, used by the I/O loop once a value is chosen.
func Unpack(packed []byte) (smID int32, value []byte) {
	if len(packed) < headerSize {
		return 0, nil
	}
	smID = int32(binary.BigEndian.Uint32(packed[:headerSize]))
	return smID, packed[headerSize:]
}

// Apply dispatches a chosen value to its registered state machine, if
// any. paxoscore.NoStateMachineID (the default for a submit with no
// SMContext) is silently dropped -- that is the expected, common case,
// not a misconfiguration worth a warning. Any other unknown SM-id is
// logged and dropped; a missing state machine is never grounds for the
// Committer to fail the submit that created it -- the caller already has
// OK and an instance id.
func (r *Registry) Apply(instanceID uint64, packed []byte, cookie interface{}) {
	smID, value := Unpack(packed)
	if smID == paxoscore.NoStateMachineID {
		return
	}

	r.mu.Lock()
	sm, ok := r.sms[smID]
	r.mu.Unlock()

	if !ok {
		logger.Warning("apply: no state machine registered for sm_id %d", smID)
		return
	}
	sm.Apply(instanceID, value, cookie)
}

// Master returns the handle to the built-in master-lease state machine,
// for callers that want IsMaster/CurrentMaster/SetLease/OnChange access directly
// (mirroring PhxElection's IsIMMaster/GetMaster/SetMasterLease surface).
func (r *Registry) Master() *masterStateMachine {
	return r.master
}

// masterStateMachine supplements the election semantics that spec.md's
// distillation dropped as "the example election program": a lease held by
// one node id, with a version that increases on every change and an
// optional change callback.
type masterStateMachine struct {
	mu       sync.Mutex
	holder   string
	version  uint64
	expiry   time.Time
	onChange func(holder string, version uint64)
}

func newMasterStateMachine() *masterStateMachine {
	return &masterStateMachine{}
}

// Apply treats the chosen value as the new lease holder's node id.
func (m *masterStateMachine) Apply(instanceID uint64, value []byte, cookie interface{}) {
	m.mu.Lock()
	m.holder = string(value)
	m.version++
	holder, version := m.holder, m.version
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(holder, version)
	}
}

// SetLease sets how long a won lease is considered valid from now.
// leaseMS <= 0 clears the lease immediately -- note this is NOT the same
// as a zero-value expiry, which IsMaster treats as "no lease configured"
// (unbounded); an explicit clear must set a past, non-zero expiry so it
// reads as expired rather than unbounded.
func (m *masterStateMachine) SetLease(leaseMS int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if leaseMS <= 0 {
		m.expiry = time.Now()
		return
	}
	m.expiry = time.Now().Add(time.Duration(leaseMS) * time.Millisecond)
}

// IsMaster reports whether nodeID currently holds an unexpired lease.
func (m *masterStateMachine) IsMaster(nodeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holder != nodeID {
		return false
	}
	return m.expiry.IsZero() || time.Now().Before(m.expiry)
}

// CurrentMaster returns the current lease holder and its version.
func (m *masterStateMachine) CurrentMaster() (string, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder, m.version
}

// OnChange registers a callback invoked after every successful lease
// change, mirroring PhxElection::OnMasterChange.
func (m *masterStateMachine) OnChange(cb func(holder string, version uint64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = cb
}
