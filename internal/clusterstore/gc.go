package clusterstore

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

// GCResult reports how many rows a GC pass removed, for logging.
type GCResult struct {
	PeersRemoved  int
	FieldsRemoved int
}

// GC removes, inside a single write transaction, every peer row whose
// last_seen is older than now-peerExpiry and every field row whose version
// is older than now-fieldExpiry. GC operates purely on ages; it never
// inspects encoded payloads.
func (s *Store) GC(now time.Time, peerExpiry, fieldExpiry time.Duration) (GCResult, error) {
	var result GCResult
	peerCutoff := now.Add(-peerExpiry).Unix()
	fieldCutoff := stampBefore(now.Add(-fieldExpiry))

	err := s.db.Update(func(tx *bolt.Tx) error {
		peers := tx.Bucket(bucketPeers)
		var staleAddrs [][]byte
		err := peers.ForEach(func(k, v []byte) error {
			var row peerRow
			if err := cborDecode(v, &row); err != nil {
				return err
			}
			if row.LastSeen < peerCutoff {
				staleAddrs = append(staleAddrs, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, addr := range staleAddrs {
			if err := peers.Delete(addr); err != nil {
				return err
			}
			result.PeersRemoved++
		}

		fields := tx.Bucket(bucketFields)
		return forEachNodeBucket(fields, func(nodeKey []byte, nb *bolt.Bucket) error {
			var staleNames [][]byte
			err := nb.ForEach(func(k, v []byte) error {
				var row fieldRow
				if err := cborDecode(v, &row); err != nil {
					return err
				}
				if row.Version < fieldCutoff {
					staleNames = append(staleNames, append([]byte(nil), k...))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, name := range staleNames {
				if err := nb.Delete(name); err != nil {
					return err
				}
				result.FieldsRemoved++
			}
			return nil
		})
	})

	return result, err
}

// stampBefore converts a wall-clock cutoff to the uint64 stamp comparable
// against a ProbeState's Version().
func stampBefore(t time.Time) uint64 {
	if t.UnixMilli() < 0 {
		return 0
	}
	return uint64(t.UnixMilli())
}
