package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
	"github.com/Monadic-DNA/Batcher-sub000/internal/store"
)

// state is the committed ledger. It is only read or written under Ledger.mu.
type state struct {
	global       domain.GlobalState
	batches      map[uint64]domain.Batch
	participants map[uint64]map[common.Address]domain.Participant
	codes        map[common.Hash]domain.DiscountCode
	redemptions  map[common.Hash]map[common.Address]domain.Redemption
	roles        map[common.Address]domain.RoleAssignment
}

func newState() *state {
	return &state{
		batches:      make(map[uint64]domain.Batch),
		participants: make(map[uint64]map[common.Address]domain.Participant),
		codes:        make(map[common.Hash]domain.DiscountCode),
		redemptions:  make(map[common.Hash]map[common.Address]domain.Redemption),
		roles:        make(map[common.Address]domain.RoleAssignment),
	}
}

func stateFromSnapshot(snap store.Snapshot) *state {
	s := newState()
	if snap.Global != nil {
		s.global = *snap.Global
	}
	for _, b := range snap.Batches {
		s.batches[b.ID] = b
	}
	for _, p := range snap.Participants {
		s.putParticipant(p)
	}
	for _, c := range snap.Codes {
		s.codes[c.CodeHash] = c
	}
	for _, red := range snap.Redemptions {
		s.putRedemption(red)
	}
	for _, ra := range snap.Roles {
		if ra.Role != domain.RoleNone {
			s.roles[ra.Address] = ra
		}
	}
	return s
}

func (s *state) putParticipant(p domain.Participant) {
	byAddr, ok := s.participants[p.BatchID]
	if !ok {
		byAddr = make(map[common.Address]domain.Participant)
		s.participants[p.BatchID] = byAddr
	}
	byAddr[p.Address] = p
}

func (s *state) putRedemption(red domain.Redemption) {
	byAddr, ok := s.redemptions[red.CodeHash]
	if !ok {
		byAddr = make(map[common.Address]domain.Redemption)
		s.redemptions[red.CodeHash] = byAddr
	}
	byAddr[red.Address] = red
}

func (s *state) participant(batchID uint64, addr common.Address) (domain.Participant, bool) {
	p, ok := s.participants[batchID][addr]
	return p, ok
}

// apply merges a committed changeset.
func (s *state) apply(cs store.Changeset) {
	if cs.Global != nil {
		s.global = *cs.Global
	}
	for _, b := range cs.Batches {
		s.batches[b.ID] = b
	}
	for _, key := range cs.Removed {
		delete(s.participants[key.BatchID], key.Address)
	}
	for _, p := range cs.Participants {
		s.putParticipant(p)
	}
	for _, c := range cs.Codes {
		s.codes[c.CodeHash] = c
	}
	for _, red := range cs.Redemptions {
		s.putRedemption(red)
	}
	for _, ra := range cs.Roles {
		if ra.Role == domain.RoleNone {
			delete(s.roles, ra.Address)
			continue
		}
		s.roles[ra.Address] = ra
	}
}

// transfer is a pending token movement between custody and an account.
type transfer struct {
	account common.Address
	amount  int64
	inbound bool
}

// txn stages one operation's effects on top of the committed state. Nothing
// touches the committed state until the store accepted the changeset.
type txn struct {
	base  *state
	now   time.Time
	actor common.Address

	global       domain.GlobalState
	globalDirty  bool
	batches      map[uint64]domain.Batch
	participants map[domain.ParticipantKey]domain.Participant
	removed      map[domain.ParticipantKey]bool
	codes        map[common.Hash]domain.DiscountCode
	redemptions  []domain.Redemption
	roles        map[common.Address]domain.RoleAssignment
	events       []domain.Event
	transfers    []transfer
}

func newTxn(base *state, actor common.Address, now time.Time) *txn {
	return &txn{
		base:         base,
		now:          now,
		actor:        actor,
		global:       base.global,
		batches:      make(map[uint64]domain.Batch),
		participants: make(map[domain.ParticipantKey]domain.Participant),
		removed:      make(map[domain.ParticipantKey]bool),
		codes:        make(map[common.Hash]domain.DiscountCode),
		roles:        make(map[common.Address]domain.RoleAssignment),
	}
}

func (t *txn) setGlobal(g domain.GlobalState) {
	t.global = g
	t.globalDirty = true
}

func (t *txn) batch(id uint64) (domain.Batch, error) {
	if b, ok := t.batches[id]; ok {
		return b, nil
	}
	b, ok := t.base.batches[id]
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}
	return b, nil
}

func (t *txn) putBatch(b domain.Batch) {
	t.batches[b.ID] = b
}

func (t *txn) participant(batchID uint64, addr common.Address) (domain.Participant, bool) {
	key := domain.ParticipantKey{BatchID: batchID, Address: addr}
	if t.removed[key] {
		return domain.Participant{}, false
	}
	if p, ok := t.participants[key]; ok {
		return p, true
	}
	return t.base.participant(batchID, addr)
}

func (t *txn) putParticipant(p domain.Participant) {
	key := p.Key()
	delete(t.removed, key)
	t.participants[key] = p
}

func (t *txn) removeParticipant(key domain.ParticipantKey) {
	delete(t.participants, key)
	t.removed[key] = true
}

// participantsOf lists the batch's participants as seen by this txn.
func (t *txn) participantsOf(batchID uint64) []domain.Participant {
	seen := make(map[common.Address]bool)
	var out []domain.Participant
	for key, p := range t.participants {
		if key.BatchID == batchID {
			out = append(out, p)
			seen[key.Address] = true
		}
	}
	for addr, p := range t.base.participants[batchID] {
		key := domain.ParticipantKey{BatchID: batchID, Address: addr}
		if seen[addr] || t.removed[key] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (t *txn) code(hash common.Hash) (domain.DiscountCode, bool) {
	if c, ok := t.codes[hash]; ok {
		return c, true
	}
	c, ok := t.base.codes[hash]
	return c, ok
}

func (t *txn) putCode(c domain.DiscountCode) {
	t.codes[c.CodeHash] = c
}

func (t *txn) redeemed(hash common.Hash, addr common.Address) bool {
	if _, ok := t.base.redemptions[hash][addr]; ok {
		return true
	}
	for _, red := range t.redemptions {
		if red.CodeHash == hash && red.Address == addr {
			return true
		}
	}
	return false
}

func (t *txn) role(addr common.Address) domain.Role {
	if ra, ok := t.roles[addr]; ok {
		return ra.Role
	}
	return t.base.roles[addr].Role
}

func (t *txn) admins() []common.Address {
	var out []common.Address
	for addr := range t.base.roles {
		if t.role(addr) == domain.RoleAdmin {
			out = append(out, addr)
		}
	}
	for addr, ra := range t.roles {
		if _, counted := t.base.roles[addr]; !counted && ra.Role == domain.RoleAdmin {
			out = append(out, addr)
		}
	}
	return out
}

func (t *txn) setRole(addr common.Address, role domain.Role) {
	t.roles[addr] = domain.RoleAssignment{Address: addr, Role: role, GrantedAt: t.now}
}

func (t *txn) emit(ev domain.Event) {
	t.events = append(t.events, ev)
}

func (t *txn) event(eventType domain.EventType) domain.Event {
	return domain.NewEvent(eventType, t.actor, t.now)
}

func (t *txn) pull(from common.Address, amount int64) {
	if amount > 0 {
		t.transfers = append(t.transfers, transfer{account: from, amount: amount, inbound: true})
	}
}

func (t *txn) push(to common.Address, amount int64) {
	if amount > 0 {
		t.transfers = append(t.transfers, transfer{account: to, amount: amount})
	}
}

func (t *txn) changeset() store.Changeset {
	var cs store.Changeset
	if t.globalDirty {
		g := t.global
		cs.Global = &g
	}
	for _, b := range t.batches {
		cs.Batches = append(cs.Batches, b)
	}
	for key := range t.removed {
		cs.Removed = append(cs.Removed, key)
	}
	for _, p := range t.participants {
		cs.Participants = append(cs.Participants, p)
	}
	for _, c := range t.codes {
		cs.Codes = append(cs.Codes, c)
	}
	cs.Redemptions = append(cs.Redemptions, t.redemptions...)
	for _, ra := range t.roles {
		cs.Roles = append(cs.Roles, ra)
	}
	cs.Events = append(cs.Events, t.events...)
	return cs
}
