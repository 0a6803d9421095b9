package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// List returns the records of all live workers under prefix, sorted by ID.
// Keys that expire while listing are skipped; undecodable values are skipped too.
func List(ctx context.Context, kv jetstream.KeyValue, prefix string) ([]Record, error) {
	lister, err := kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list presence keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var records []Record
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix+".") {
			continue
		}

		entry, err := kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
				continue
			}

			return nil, fmt.Errorf("get presence %s: %w", key, err)
		}

		var rec Record
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}

	slices.SortFunc(records, func(a, b Record) int { return strings.Compare(a.ID, b.ID) })

	return records, nil
}
