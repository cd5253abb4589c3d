// Package clusterstore implements the node-local, persistent replicated
// state: a bbolt-backed key-value store holding a peer address table and a
// per-(node, probe) versioned ProbeState table, with digest/diff/apply
// operations driving anti-entropy and a GC pass that expires stale rows.
package clusterstore

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mcastellin/uptime-gossip/internal/node"
	"github.com/mcastellin/uptime-gossip/internal/probe"
	"github.com/mcastellin/uptime-gossip/internal/wire"
)

var (
	bucketPeers  = []byte("cluster_peers")
	bucketFields = []byte("cluster_fields")
)

// Store is the GossipStore: every public operation here runs inside exactly
// one bbolt transaction, giving it atomic commit semantics.
type Store struct {
	db     *bolt.DB
	selfID node.ID
}

// Open opens (creating if necessary) the single-file embedded database at
// path and returns a Store identified by selfID.
func Open(path string, selfID node.ID) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("clusterstore: opening %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketPeers); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketFields)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("clusterstore: initializing buckets: %w", err)
	}

	return &Store{db: db, selfID: selfID}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// SelfID returns this replica's NodeId.
func (s *Store) SelfID() node.ID {
	return s.selfID
}

type peerRow struct {
	ID       node.ID `cbor:"id"`
	LastSeen int64   `cbor:"last_seen"`
}

type fieldRow struct {
	Version uint64      `cbor:"version"`
	State   probe.State `cbor:"state"`
}

func fieldKey(probeName string) []byte {
	return []byte(probeName)
}

func nodeBucketKey(id node.ID) []byte {
	return id[:]
}

// forEachNodeBucket iterates every per-node nested bucket under fields,
// skipping any non-bucket entries (there should be none, but bbolt's
// ForEach doesn't distinguish buckets from values except by a nil value).
func forEachNodeBucket(fields *bolt.Bucket, fn func(key []byte, nb *bolt.Bucket) error) error {
	return fields.ForEach(func(k, v []byte) error {
		if v != nil {
			return nil
		}
		return fn(k, fields.Bucket(k))
	})
}

// Heartbeat upserts peers[addr] = (peer, now).
func (s *Store) Heartbeat(peer node.ID, addr node.Addr, now time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		row := peerRow{ID: peer, LastSeen: now.Unix()}
		b, err := cborEncode(row)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPeers).Put([]byte(addr.String()), b)
	})
}

// PeerAddresses returns every address key currently known, deduplicated by
// construction (bbolt keys are already unique).
func (s *Store) PeerAddresses() ([]node.Addr, error) {
	var addrs []node.Addr
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPeers).ForEach(func(k, _ []byte) error {
			addrs = append(addrs, node.Addr{Network: "udp", Value: string(k)})
			return nil
		})
	})
	return addrs, err
}

// Peers returns every peer row, for the read API.
func (s *Store) Peers() (map[node.Addr]struct {
	ID       node.ID
	LastSeen time.Time
}, error) {
	out := map[node.Addr]struct {
		ID       node.ID
		LastSeen time.Time
	}{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPeers).ForEach(func(k, v []byte) error {
			var row peerRow
			if err := cborDecode(v, &row); err != nil {
				return err
			}
			out[node.Addr{Network: "udp", Value: string(k)}] = struct {
				ID       node.ID
				LastSeen time.Time
			}{ID: row.ID, LastSeen: time.Unix(row.LastSeen, 0)}
			return nil
		})
	})
	return out, err
}

// Digest returns, for every row in fields, the maximum version held per
// NodeId.
func (s *Store) Digest() (wire.Digest, error) {
	digest := wire.Digest{}
	err := s.db.View(func(tx *bolt.Tx) error {
		fields := tx.Bucket(bucketFields)
		return forEachNodeBucket(fields, func(nodeKey []byte, nb *bolt.Bucket) error {
			var id node.ID
			copy(id[:], nodeKey)

			var max uint64
			err := nb.ForEach(func(_, v []byte) error {
				var row fieldRow
				if err := cborDecode(v, &row); err != nil {
					return err
				}
				if row.Version > max {
					max = row.Version
				}
				return nil
			})
			if err != nil {
				return err
			}
			digest[id] = max
			return nil
		})
	})
	return digest, err
}

// Diff computes, for every row whose version exceeds the caller's digest
// entry, the ProbeState diff owed to the caller.
func (s *Store) Diff(remote wire.Digest) (wire.Delta, error) {
	delta := wire.Delta{}
	err := s.db.View(func(tx *bolt.Tx) error {
		fields := tx.Bucket(bucketFields)
		return forEachNodeBucket(fields, func(nodeKey []byte, nb *bolt.Bucket) error {
			var id node.ID
			copy(id[:], nodeKey)
			remoteVersion := remote[id]

			return nb.ForEach(func(k, v []byte) error {
				var row fieldRow
				if err := cborDecode(v, &row); err != nil {
					return err
				}
				if row.Version <= remoteVersion {
					return nil
				}
				diff, ok := row.State.DiffSince(remoteVersion)
				if !ok {
					return nil
				}
				if delta[id] == nil {
					delta[id] = map[string]probe.State{}
				}
				delta[id][string(k)] = diff
				return nil
			})
		})
	})
	return delta, err
}

// Apply merges an inbound delta into local storage. A row whose NodeId
// equals SelfID is never overwritten, only merged - ProbeState.Apply's
// max(last_updated) rule guarantees a local row can only advance, never
// regress, from an inbound delta.
func (s *Store) Apply(delta wire.Delta) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		fields := tx.Bucket(bucketFields)
		for peerID, probes := range delta {
			nb, err := fields.CreateBucketIfNotExists(nodeBucketKey(peerID))
			if err != nil {
				return err
			}
			for name, incoming := range probes {
				current, found, err := getField(nb, name)
				if err != nil {
					return err
				}
				if found {
					current.Apply(incoming)
				} else {
					current = incoming
				}
				if err := putField(nb, name, current); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// UpdateProbeDescriptor ensures a local row exists for (selfID, name)
// and bumps last_updated at least 1ms past its prior value.
func (s *Store) UpdateProbeDescriptor(name string, tags map[string]string, now time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		nb, err := tx.Bucket(bucketFields).CreateBucketIfNotExists(nodeBucketKey(s.selfID))
		if err != nil {
			return err
		}

		current, found, err := getField(nb, name)
		if err != nil {
			return err
		}
		if !found {
			current = probe.State{Name: name, Tags: tags}
		}
		current.BumpDescriptorUpdate(name, tags, now)
		return putField(nb, name, current)
	})
}

// RecordResult folds a probe result into the local row's current hour
// bucket, creating the row if this is the first observation.
func (s *Store) RecordResult(name string, now time.Time, result probe.Result) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		nb, err := tx.Bucket(bucketFields).CreateBucketIfNotExists(nodeBucketKey(s.selfID))
		if err != nil {
			return err
		}

		current, found, err := getField(nb, name)
		if err != nil {
			return err
		}
		if !found {
			current = probe.NewState(name, nil, s.selfID, now, result)
		} else {
			current.FoldResult(s.selfID, now, result)
		}
		return putField(nb, name, current)
	})
}

// Field fetches the current decoded ProbeState for one (node, probe) row.
func (s *Store) Field(id node.ID, probeName string) (probe.State, bool, error) {
	var out probe.State
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		nb := tx.Bucket(bucketFields).Bucket(nodeBucketKey(id))
		if nb == nil {
			return nil
		}
		state, ok, err := getField(nb, probeName)
		if err != nil {
			return err
		}
		out, found = state, ok
		return nil
	})
	return out, found, err
}

// AllFields returns every (node, probe) row for the read API.
func (s *Store) AllFields() (map[node.ID]map[string]probe.State, error) {
	out := map[node.ID]map[string]probe.State{}
	err := s.db.View(func(tx *bolt.Tx) error {
		fields := tx.Bucket(bucketFields)
		return forEachNodeBucket(fields, func(nodeKey []byte, nb *bolt.Bucket) error {
			var id node.ID
			copy(id[:], nodeKey)

			probes := map[string]probe.State{}
			err := nb.ForEach(func(k, v []byte) error {
				var row fieldRow
				if err := cborDecode(v, &row); err != nil {
					return err
				}
				probes[string(k)] = row.State
				return nil
			})
			if err != nil {
				return err
			}
			out[id] = probes
			return nil
		})
	})
	return out, err
}

func getField(nb *bolt.Bucket, name string) (probe.State, bool, error) {
	v := nb.Get(fieldKey(name))
	if v == nil {
		return probe.State{}, false, nil
	}
	var row fieldRow
	if err := cborDecode(v, &row); err != nil {
		return probe.State{}, false, err
	}
	return row.State, true, nil
}

func putField(nb *bolt.Bucket, name string, state probe.State) error {
	row := fieldRow{Version: state.Version(), State: state}
	b, err := cborEncode(row)
	if err != nil {
		return err
	}
	return nb.Put(fieldKey(name), b)
}
