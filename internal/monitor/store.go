// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/keywatch/keywatch/internal/logging"
	"github.com/keywatch/keywatch/internal/metrics"
)

// Key layout:
//
//	evt:<len>:<userID>:<20-digit recordedAt unixnano>  -> MatchEvent JSON
//	evtcnt:<userID>                                    -> decimal event count
//	prof:<userID>                                -> UserProfile JSON
//	chan:<channelID>                             -> ChannelWatchConfig JSON
//	cat:<category>                               -> CategoryConfig JSON
const (
	eventKeyPrefix    = "evt:"
	eventCountPrefix  = "evtcnt:"
	profileKeyPrefix  = "prof:"
	channelKeyPrefix  = "chan:"
	categoryKeyPrefix = "cat:"
)

// BadgerStore persists user event histories, profiles, and watch
// configuration in a single embedded Badger database. It implements
// EventStore, ProfileStore, and ConfigSource.
type BadgerStore struct {
	db *badger.DB

	// lastRecorded keeps RecordedAt strictly increasing per user so that
	// event keys never collide and history order is total.
	mu           sync.Mutex
	lastRecorded map[string]time.Time
}

// NewBadgerStore opens or creates the database at path. An empty path opens
// an in-memory database, used by tests.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithCompactL0OnClose(true)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}

	logging.Info().Str("path", path).Msg("Store opened")
	return &BadgerStore{
		db:           db,
		lastRecorded: make(map[string]time.Time),
	}, nil
}

// Close flushes and closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// eventPrefix length-prefixes the userID so that IDs containing the
// delimiter (say "u" and "u:1") can never shadow each other's scan range.
func eventPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:", eventKeyPrefix, len(userID), userID))
}

func eventKey(userID string, recordedAt time.Time) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventPrefix(userID), recordedAt.UnixNano()))
}

func (s *BadgerStore) nextRecordedAt(userID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if last, ok := s.lastRecorded[userID]; ok && !now.After(last) {
		now = last.Add(time.Nanosecond)
	}
	s.lastRecorded[userID] = now
	return now
}

// Append implements EventStore. The event's RecordedAt is assigned here and
// is strictly increasing per user. When the stored count exceeds
// HistoryCapacity the oldest EvictionBatch events are deleted in the same
// transaction, so the history briefly reaches capacity+1 but never more.
func (s *BadgerStore) Append(ctx context.Context, event *MatchEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event.RecordedAt = s.nextRecordedAt(event.UserID)

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	countKey := []byte(eventCountPrefix + event.UserID)
	var evicted int

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(eventKey(event.UserID, event.RecordedAt), raw); err != nil {
			return err
		}

		count, err := readCount(txn, countKey)
		if err != nil {
			return err
		}
		count++

		if count > HistoryCapacity {
			removed, err := evictOldest(txn, event.UserID, EvictionBatch)
			if err != nil {
				return err
			}
			count -= removed
			evicted = removed
		}

		return txn.Set(countKey, []byte(strconv.Itoa(count)))
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("append").Inc()
		return fmt.Errorf("%w: append event for user %s: %v", ErrStoreUnavailable, event.UserID, err)
	}

	metrics.EventsAppended.Inc()
	if evicted > 0 {
		metrics.EventsEvicted.Add(float64(evicted))
		logging.Debug().
			Str("user_id", event.UserID).
			Int("evicted", evicted).
			Msg("Evicted oldest history events")
	}
	return nil
}

func readCount(txn *badger.Txn, key []byte) (int, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count int
	err = item.Value(func(val []byte) error {
		count, err = strconv.Atoi(string(val))
		return err
	})
	return count, err
}

func evictOldest(txn *badger.Txn, userID string, n int) (int, error) {
	prefix := eventPrefix(userID)

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix) && len(keys) < n; it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// Recent implements EventStore, returning at most limit events newest first.
func (s *BadgerStore) Recent(ctx context.Context, userID string, limit int) ([]MatchEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > HistoryCapacity {
		limit = HistoryCapacity
	}

	prefix := eventPrefix(userID)
	// Seek target just past the user's key range for reverse iteration.
	seek := append(append([]byte{}, prefix...), 0xFF)

	var events []MatchEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix) && len(events) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var event MatchEvent
				if err := json.Unmarshal(val, &event); err != nil {
					return fmt.Errorf("unmarshal event %s: %w", it.Item().Key(), err)
				}
				events = append(events, event)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("recent").Inc()
		return nil, fmt.Errorf("%w: recent events for user %s: %v", ErrStoreUnavailable, userID, err)
	}
	return events, nil
}

// GetProfile implements ProfileStore. A missing profile returns (nil, nil).
func (s *BadgerStore) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var profile *UserProfile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profileKeyPrefix + userID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var p UserProfile
			if err := json.Unmarshal(val, &p); err != nil {
				return fmt.Errorf("unmarshal profile: %w", err)
			}
			profile = &p
			return nil
		})
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("profile_get").Inc()
		return nil, fmt.Errorf("%w: get profile %s: %v", ErrStoreUnavailable, userID, err)
	}
	return profile, nil
}

// PutProfile implements ProfileStore.
func (s *BadgerStore) PutProfile(ctx context.Context, profile *UserProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(profileKeyPrefix+profile.UserID), raw)
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("profile_put").Inc()
		return fmt.Errorf("%w: put profile %s: %v", ErrStoreUnavailable, profile.UserID, err)
	}
	return nil
}

// PutWatchConfig stores or replaces one channel's watch configuration.
func (s *BadgerStore) PutWatchConfig(ctx context.Context, cfg *ChannelWatchConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal watch config: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(channelKeyPrefix+cfg.ChannelID), raw)
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("config").Inc()
		return fmt.Errorf("%w: put watch config %s: %v", ErrStoreUnavailable, cfg.ChannelID, err)
	}
	return nil
}

// WatchConfig implements ConfigSource. Unknown channels return (nil, nil).
func (s *BadgerStore) WatchConfig(ctx context.Context, channelID string) (*ChannelWatchConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cfg *ChannelWatchConfig
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(channelKeyPrefix + channelID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var c ChannelWatchConfig
			if err := json.Unmarshal(val, &c); err != nil {
				return fmt.Errorf("unmarshal watch config: %w", err)
			}
			cfg = &c
			return nil
		})
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("config").Inc()
		return nil, fmt.Errorf("%w: watch config %s: %v", ErrStoreUnavailable, channelID, err)
	}
	return cfg, nil
}

// WatchedChannelIDs implements ConfigSource, listing channels with
// Watched=true.
func (s *BadgerStore) WatchedChannelIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(channelKeyPrefix)
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var c ChannelWatchConfig
				if err := json.Unmarshal(val, &c); err != nil {
					return err
				}
				if c.Watched {
					ids = append(ids, c.ChannelID)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("config").Inc()
		return nil, fmt.Errorf("%w: list watched channels: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

// PutCategory stores or replaces one category registry entry.
func (s *BadgerStore) PutCategory(ctx context.Context, cat *CategoryConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(cat)
	if err != nil {
		return fmt.Errorf("marshal category: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(categoryKeyPrefix+cat.Name), raw)
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("config").Inc()
		return fmt.Errorf("%w: put category %s: %v", ErrStoreUnavailable, cat.Name, err)
	}
	return nil
}

// Destinations implements ConfigSource. Unregistered categories return an
// empty list, which the dispatch gate treats as "notify nobody".
func (s *BadgerStore) Destinations(ctx context.Context, category string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var destinations []string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(categoryKeyPrefix + category))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var c CategoryConfig
			if err := json.Unmarshal(val, &c); err != nil {
				return fmt.Errorf("unmarshal category: %w", err)
			}
			destinations = c.Destinations
			return nil
		})
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("config").Inc()
		return nil, fmt.Errorf("%w: destinations for %s: %v", ErrStoreUnavailable, category, err)
	}
	return destinations, nil
}

// EventCount returns the stored history size for a user.
func (s *BadgerStore) EventCount(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = readCount(txn, []byte(eventCountPrefix+userID))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: event count for %s: %v", ErrStoreUnavailable, userID, err)
	}
	return count, nil
}

var _ EventStore = (*BadgerStore)(nil)
var _ ProfileStore = (*BadgerStore)(nil)
var _ ConfigSource = (*BadgerStore)(nil)
