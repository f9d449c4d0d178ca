// Package coordination implements the Coordination Primitive: a CAS+TTL
// lease over a bbolt database, plus the peer discovery tags every group
// member registers itself under.
//
// This stands in for a consensus protocol like Raft. The substitution is
// deliberate rather than a shortcut: tyrant mode lets an operator force one
// peer to become leader immediately, bypassing whatever lease another peer
// currently holds. A quorum-based consensus protocol has no way to express
// "one member unilaterally overrides the group" without first leaving the
// cluster and rejoining as a new single-node quorum - Seize below is a
// single ACID transaction instead.
package coordination

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketLeases    = []byte("leases")
	bucketDiscovery = []byte("discovery")
)

// Lease is the current holder of a group's leader lock.
type Lease struct {
	Group     string    `json:"group"`
	HolderURI string    `json:"holder_uri"`
	ExpiresAt time.Time `json:"expires_at"`
	Tyrant    bool      `json:"tyrant"`
}

func (l *Lease) expired(now time.Time) bool {
	return l == nil || now.After(l.ExpiresAt)
}

// Coordinator owns the bbolt database backing leases and discovery tags. It
// opens its own file distinct from the Store's dcc.db - lease contention is
// a much hotter read/write path than project/build/bucket CRUD, and keeping
// them in separate files avoids one from blocking the other's transactions.
type Coordinator struct {
	db *bolt.DB
}

// Open creates or opens the coordination database rooted at dataDir.
func Open(dataDir string) (*Coordinator, error) {
	dbPath := filepath.Join(dataDir, "dcc-coordination.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open coordination database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketLeases, bucketDiscovery} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Coordinator{db: db}, nil
}

// Close closes the coordination database.
func (c *Coordinator) Close() error {
	return c.db.Close()
}

// Acquire attempts to take the group's leader lease for holderURI. It
// succeeds if no lease exists, the existing lease has expired, or holderURI
// already holds it (idempotent re-acquire). It never overrides a live lease
// held by someone else - that is what Seize is for.
func (c *Coordinator) Acquire(group, holderURI string, ttl time.Duration) (bool, error) {
	acquired := false
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		current, err := readLease(b, group)
		if err != nil {
			return err
		}

		now := time.Now()
		if !current.expired(now) && current.HolderURI != holderURI {
			acquired = false
			return nil
		}

		lease := &Lease{Group: group, HolderURI: holderURI, ExpiresAt: now.Add(ttl)}
		acquired = true
		return writeLease(b, lease)
	})
	return acquired, err
}

// Renew extends the TTL of a lease holderURI already holds. It fails
// (returns false, nil) if another peer holds the lease, including a tyrant
// lease - a renewal never contests a seizure.
func (c *Coordinator) Renew(group, holderURI string, ttl time.Duration) (bool, error) {
	renewed := false
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		current, err := readLease(b, group)
		if err != nil {
			return err
		}

		now := time.Now()
		if current.expired(now) || current.HolderURI != holderURI {
			renewed = false
			return nil
		}

		lease := &Lease{Group: group, HolderURI: holderURI, ExpiresAt: now.Add(ttl), Tyrant: current.Tyrant}
		renewed = true
		return writeLease(b, lease)
	})
	return renewed, err
}

// Seize unconditionally takes the group's lease for holderURI, overwriting
// any existing holder including a live, unexpired lease. This is tyrant
// mode's entire implementation: one ACID write, no negotiation with the
// peer currently believing itself to be leader.
func (c *Coordinator) Seize(group, holderURI string, ttl time.Duration) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		lease := &Lease{Group: group, HolderURI: holderURI, ExpiresAt: time.Now().Add(ttl), Tyrant: true}
		return writeLease(b, lease)
	})
}

// Release gives up holderURI's lease early, e.g. on graceful shutdown. It is
// a no-op if holderURI does not currently hold the lease.
func (c *Coordinator) Release(group, holderURI string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		current, err := readLease(b, group)
		if err != nil {
			return err
		}
		if current == nil || current.HolderURI != holderURI {
			return nil
		}
		return b.Delete(leaseKey(group))
	})
}

// Current returns the group's lease, or nil if none exists. The lease may
// be expired; callers that care should compare ExpiresAt against time.Now().
func (c *Coordinator) Current(group string) (*Lease, error) {
	var lease *Lease
	err := c.db.View(func(tx *bolt.Tx) error {
		var err error
		lease, err = readLease(tx.Bucket(bucketLeases), group)
		return err
	})
	return lease, err
}

// RegisterDiscovery publishes this peer's discovery tag, e.g.
// "dcc:ci-fleet:10.0.1.4:7420", so other peers joining the group can find
// it. Tags are overwritten on every call and never expire: an entry stays
// until ClearDiscovery removes it.
func (c *Coordinator) RegisterDiscovery(group, tag string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDiscovery)
		return b.Put(discoveryKey(group, tag), []byte(tag))
	})
}

// ClearDiscovery removes this peer's discovery tag, so a graceful shutdown
// leaves no residue for other peers to discover a dead address by.
func (c *Coordinator) ClearDiscovery(group, tag string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDiscovery)
		return b.Delete(discoveryKey(group, tag))
	})
}

// ListDiscoveryTags returns every discovery tag registered for a group.
func (c *Coordinator) ListDiscoveryTags(group string) ([]string, error) {
	var tags []string
	prefix := []byte(group + ":")
	err := c.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketDiscovery).Cursor()
		for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
			tags = append(tags, string(v))
		}
		return nil
	})
	return tags, err
}

func discoveryKey(group, tag string) []byte {
	return []byte(group + ":" + tag)
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func readLease(b *bolt.Bucket, group string) (*Lease, error) {
	data := b.Get(leaseKey(group))
	if data == nil {
		return nil, nil
	}
	var lease Lease
	if err := json.Unmarshal(data, &lease); err != nil {
		return nil, fmt.Errorf("failed to decode lease for %s: %w", group, err)
	}
	return &lease, nil
}

func writeLease(b *bolt.Bucket, lease *Lease) error {
	data, err := json.Marshal(lease)
	if err != nil {
		return err
	}
	return b.Put(leaseKey(lease.Group), data)
}

func leaseKey(group string) []byte {
	return []byte(group + ":leader")
}
