// Package state implements the per-mint COLD/WARM/HOT token state
// machine, backed by BadgerDB so state survives a restart without
// replaying the whole stream. Alert cooldown is tracked independently of
// state, since an already-HOT mint can still refire alerts.
package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/rlaau/swapsentry/shared/domain"
)

type Manager struct {
	db            *badger.DB
	hotTTL        time.Duration
	warmToCold    time.Duration
	alertCooldown time.Duration

	// Backfill schedules a delta-log replay into the counters (without
	// re-running swap inference) for a mint promoted to HOT. Left nil in tests that don't
	// exercise promotion.
	Backfill func(mint domain.Address)
}

func Open(dir string, hotTTL, warmToCold, alertCooldown time.Duration) (*Manager, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("state: open badger at %s: %w", dir, err)
	}
	return &Manager{db: db, hotTTL: hotTTL, warmToCold: warmToCold, alertCooldown: alertCooldown}, nil
}

func (m *Manager) Close() error { return m.db.Close() }

func profileKey(mint domain.Address) []byte  { return []byte("profile:" + mint.String()) }
func cooldownKey(mint domain.Address) []byte { return []byte("cooldown:" + mint.String()) }

func (m *Manager) put(txn *badger.Txn, p domain.TokenProfile, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	entry := badger.NewEntry(profileKey(p.Mint), data)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return txn.SetEntry(entry)
}

// Touch records activity (a SwapEvent or MintTouchEvent) for a mint,
// advancing COLD to WARM on first contact and refreshing the WARM TTL on
// every subsequent touch. HOT mints are untouched here; only a trigger
// firing moves WARM to HOT.
func (m *Manager) Touch(mint domain.Address, now time.Time) (domain.TokenProfile, error) {
	var out domain.TokenProfile
	err := m.db.Update(func(txn *badger.Txn) error {
		p, found, err := m.getTxn(txn, mint)
		if err != nil {
			return err
		}
		if !found {
			p = domain.TokenProfile{Mint: mint, FirstSeen: now, State: domain.TokenCold, StateSince: now}
		}
		if p.State == domain.TokenHot {
			out = p
			return nil
		}
		if p.State == domain.TokenCold {
			p.State = domain.TokenWarm
			p.StateSince = now
		}
		ttl := time.Duration(0)
		if p.State == domain.TokenWarm {
			ttl = m.warmToCold
		}
		out = p
		return m.put(txn, p, ttl)
	})
	return out, err
}

// Promote moves a mint to HOT because a TriggerRule fired, records the
// HOT TTL deadline, and schedules a backfill replay.
func (m *Manager) Promote(mint domain.Address, now time.Time) (domain.TokenProfile, error) {
	var out domain.TokenProfile
	wasHot := false
	err := m.db.Update(func(txn *badger.Txn) error {
		p, found, err := m.getTxn(txn, mint)
		if err != nil {
			return err
		}
		if !found {
			p = domain.TokenProfile{Mint: mint, FirstSeen: now}
		}
		wasHot = p.State == domain.TokenHot
		expiry := now.Add(m.hotTTL)
		if p.State != domain.TokenHot {
			p.StateSince = now
		}
		p.State = domain.TokenHot
		p.HotTTLExpiresAt = &expiry
		out = p
		return m.put(txn, p, m.hotTTL)
	})
	if err == nil && !wasHot && m.Backfill != nil {
		m.Backfill(mint)
	}
	return out, err
}

// SweepExpiredHot demotes any HOT mint whose hot_ttl_expires_at has
// passed with no refiring back to WARM. The orchestrator calls this on a
// tick; Badger's own TTL independently reclaims the key if nothing calls
// this first, but the explicit sweep keeps state_since accurate for a
// HOT→WARM transition that the UI/alerts can observe.
func (m *Manager) SweepExpiredHot(now time.Time) error {
	return m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("profile:")
		it := txn.NewIterator(opts)
		defer it.Close()

		var stale []domain.TokenProfile
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var p domain.TokenProfile
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &p) }); err != nil {
				return err
			}
			if p.State == domain.TokenHot && p.HotTTLExpiresAt != nil && !now.Before(*p.HotTTLExpiresAt) {
				stale = append(stale, p)
			}
		}
		for _, p := range stale {
			p.State = domain.TokenWarm
			p.StateSince = now
			p.HotTTLExpiresAt = nil
			if err := m.put(txn, p, m.warmToCold); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountByState returns how many tracked mints currently sit in each
// state, for the tokens-in-state gauge.
func (m *Manager) CountByState() (map[domain.TokenState]int, error) {
	counts := make(map[domain.TokenState]int)
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("profile:")
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var p domain.TokenProfile
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &p) }); err != nil {
				return err
			}
			counts[p.State]++
		}
		return nil
	})
	return counts, err
}

func (m *Manager) getTxn(txn *badger.Txn, mint domain.Address) (domain.TokenProfile, bool, error) {
	var p domain.TokenProfile
	item, err := txn.Get(profileKey(mint))
	if err == badger.ErrKeyNotFound {
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, &p) })
	return p, true, err
}

func (m *Manager) Get(mint domain.Address) (domain.TokenProfile, bool, error) {
	var p domain.TokenProfile
	var found bool
	err := m.db.View(func(txn *badger.Txn) error {
		var verr error
		p, found, verr = m.getTxn(txn, mint)
		return verr
	})
	return p, found, err
}

// ShouldAlert reports whether an alert for mint may fire now, given the
// per-mint cooldown, and records the attempt on success. Cooldown is
// independent of token state: a HOT mint can still be in cooldown.
func (m *Manager) ShouldAlert(mint domain.Address, now time.Time) (bool, error) {
	ok := false
	err := m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(cooldownKey(mint))
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			var last time.Time
			if verr := item.Value(func(val []byte) error { return last.UnmarshalBinary(val) }); verr != nil {
				return verr
			}
			if now.Sub(last) < m.alertCooldown {
				return nil
			}
		}
		ok = true
		data, merr := now.MarshalBinary()
		if merr != nil {
			return merr
		}
		return txn.SetEntry(badger.NewEntry(cooldownKey(mint), data).WithTTL(m.alertCooldown))
	})
	return ok, err
}
