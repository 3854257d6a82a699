package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/account-sync/internal/storage"
)

// leaseClaim is the value persisted under the leader key
type leaseClaim struct {
	InstanceID string    `json:"instanceId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Lease is the advisory leadership claim shared by concurrent engine
// instances. It is best effort by design: acquisition is a read followed by
// a whole-value write, not an atomic compare-and-set, so two instances
// racing on an expired claim can both believe they won for one interval.
// The claim is re-acquired on every scheduled tick, which is also how a
// crashed leader is superseded: its claim simply expires. A superseded
// leader's in-flight fetch is never cancelled; its late cache write is an
// accepted last-write-wins race.
type Lease struct {
	store      *storage.SafeStore
	key        string
	instanceID string
	ttl        time.Duration
}

// NewLease creates a lease for this instance over the leader key
func NewLease(store *storage.SafeStore, keys storage.Keys, instanceID string, ttl time.Duration) *Lease {
	return &Lease{
		store:      store,
		key:        keys.LeaderInstance(),
		instanceID: instanceID,
		ttl:        ttl,
	}
}

// InstanceID returns this instance's id
func (l *Lease) InstanceID() string {
	return l.instanceID
}

// TryAcquire claims or renews leadership. It succeeds when the key is
// empty, holds an expired or malformed claim, or already belongs to this
// instance. A live claim by another instance is respected.
func (l *Lease) TryAcquire(ctx context.Context) bool {
	now := time.Now()

	raw, ok, _ := l.store.Get(ctx, l.key)
	if ok {
		var claim leaseClaim
		if err := json.Unmarshal([]byte(raw), &claim); err == nil {
			if claim.InstanceID != l.instanceID && now.Before(claim.ExpiresAt) {
				return false
			}
		}
	}

	claim := leaseClaim{
		InstanceID: l.instanceID,
		ExpiresAt:  now.Add(l.ttl),
	}
	data, err := json.Marshal(claim)
	if err != nil {
		return false
	}

	_ = l.store.Set(ctx, l.key, string(data))
	return true
}

// Release gives up leadership if this instance holds it
func (l *Lease) Release(ctx context.Context) {
	raw, ok, _ := l.store.Get(ctx, l.key)
	if !ok {
		return
	}

	var claim leaseClaim
	if err := json.Unmarshal([]byte(raw), &claim); err != nil {
		return
	}
	if claim.InstanceID != l.instanceID {
		return
	}

	_ = l.store.Remove(ctx, l.key)
}

// Holder returns the instance id currently written under the leader key
func (l *Lease) Holder(ctx context.Context) string {
	raw, ok, _ := l.store.Get(ctx, l.key)
	if !ok {
		return ""
	}

	var claim leaseClaim
	if err := json.Unmarshal([]byte(raw), &claim); err != nil {
		return ""
	}
	return claim.InstanceID
}
