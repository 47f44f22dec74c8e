package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/netscout/internal/db"
)

// hsetChunk bounds the commands sent per DoMulti round trip.
const hsetChunk = 256

// HSetMulti writes hashes in pipelined chunks. It stops at the first failed
// chunk; earlier chunks stay written.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	for start := 0; start < len(items); start += hsetChunk {
		chunk := items[start:min(start+hsetChunk, len(items))]

		cmds := make([]rueidis.Completed, 0, len(chunk))
		for _, item := range chunk {
			cmd := s.b().Hset().Key(item.Key).FieldValue()
			for k, v := range item.Fields {
				cmd = cmd.FieldValue(k, v)
			}
			cmds = append(cmds, cmd.Build())
		}

		for i, res := range s.client.DoMulti(ctx, cmds...) {
			if err := res.Error(); err != nil {
				return &db.Error{Op: db.OpHSet, Key: chunk[i].Key, Err: err}
			}
		}
	}
	return nil
}
