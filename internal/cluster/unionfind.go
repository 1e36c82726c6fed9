// Package cluster implements a Badger-backed union-find over the
// funded_by relation, plus a CTO (cluster/timing/new-wallet/ratio) scorer
// for HOT mints that runs on a bounded worker pool with a per-call
// deadline. Union-find mutations are serialized through a single writer
// goroutine so concurrent Union calls never race inside one Badger
// transaction.
package cluster

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/rlaau/swapsentry/shared/domain"
)

type unionJob struct {
	a, b domain.Address
	done chan error
}

type findJob struct {
	addr domain.Address
	res  chan findResult
}

type findResult struct {
	root domain.Address
	err  error
}

// UnionFind is the wallet-clustering store. Unions and Finds both funnel
// through a single goroutine; Find may be called concurrently from any
// goroutine, and it path-compresses, so it writes parent pointers too.
type UnionFind struct {
	db       *badger.DB
	unionCh  chan unionJob
	findCh   chan findJob
	closeCh  chan struct{}
}

func parentKey(a domain.Address) []byte { return []byte("parent:" + a.String()) }

func Open(dir string) (*UnionFind, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cluster: open badger at %s: %w", dir, err)
	}
	uf := &UnionFind{
		db:      db,
		unionCh: make(chan unionJob),
		findCh:  make(chan findJob),
		closeCh: make(chan struct{}),
	}
	go uf.writerLoop()
	return uf, nil
}

func (uf *UnionFind) Close() error {
	close(uf.closeCh)
	return uf.db.Close()
}

func (uf *UnionFind) writerLoop() {
	for {
		select {
		case <-uf.closeCh:
			return
		case j := <-uf.unionCh:
			j.done <- uf.union(j.a, j.b)
		case j := <-uf.findCh:
			root, err := uf.find(j.addr)
			j.res <- findResult{root: root, err: err}
		}
	}
}

// Union merges the clusters containing a and b, called when wallet a's
// first inbound native transfer was funded by wallet b.
func (uf *UnionFind) Union(a, b domain.Address) error {
	done := make(chan error, 1)
	uf.unionCh <- unionJob{a: a, b: b, done: done}
	return <-done
}

// Find returns a's current cluster root, with path compression.
func (uf *UnionFind) Find(a domain.Address) (domain.Address, error) {
	res := make(chan findResult, 1)
	uf.findCh <- findJob{addr: a, res: res}
	r := <-res
	return r.root, r.err
}

func (uf *UnionFind) union(a, b domain.Address) error {
	rootA, err := uf.find(a)
	if err != nil {
		return err
	}
	rootB, err := uf.find(b)
	if err != nil {
		return err
	}
	if rootA == rootB {
		return nil
	}
	// Deterministic tie-break so repeated unions of the same pair in
	// either order converge to the same root.
	winner, loser := rootA, rootB
	if rootB.IsSmallerThan(rootA) {
		winner, loser = rootB, rootA
	}
	return uf.db.Update(func(txn *badger.Txn) error {
		return txn.Set(parentKey(loser), []byte(winner.String()))
	})
}

func (uf *UnionFind) find(a domain.Address) (domain.Address, error) {
	path := []domain.Address{}
	cur := a
	for {
		parent, found, err := uf.getParent(cur)
		if err != nil {
			return domain.Address{}, err
		}
		if !found || parent == cur {
			break
		}
		path = append(path, cur)
		cur = parent
	}
	root := cur

	if len(path) > 1 {
		if err := uf.db.Update(func(txn *badger.Txn) error {
			for _, node := range path {
				if err := txn.Set(parentKey(node), []byte(root.String())); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return domain.Address{}, err
		}
	}
	return root, nil
}

func (uf *UnionFind) getParent(a domain.Address) (domain.Address, bool, error) {
	var parent domain.Address
	found := false
	err := uf.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(parentKey(a))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			p, perr := domain.ParseAddress(string(val))
			if perr != nil {
				return perr
			}
			parent = p
			return nil
		})
	})
	return parent, found, err
}

// profileKey namespaces a wallet's own profile JSON blob alongside its
// union-find parent pointer in the same Badger instance.
func profileKey(a domain.Address) []byte { return []byte("wprofile:" + a.String()) }

func (uf *UnionFind) SaveProfile(p domain.WalletProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return uf.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(p.Address), data)
	})
}

func (uf *UnionFind) LoadProfile(a domain.Address) (domain.WalletProfile, bool, error) {
	var p domain.WalletProfile
	found := false
	err := uf.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(a))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &p) })
	})
	return p, found, err
}
