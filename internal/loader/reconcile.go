package loader

import (
	"bytes"
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jholt/solwatch/internal/registry"
	"github.com/jholt/solwatch/internal/rpc"
)

// pollCycle fetches the state of every watched account and reconciles it
// against the version cache.
func (l *Loader) pollCycle(ctx context.Context) {
	start := time.Now()

	accounts := l.registry.Snapshot()
	if len(accounts) == 0 {
		return
	}

	subBatches := chunk(accounts, l.cfg.ChunkSize)
	groups := chunk(subBatches, l.cfg.GroupSize)

	// Each group is one JSON-RPC batch post; all groups go out concurrently.
	// Results are collected per group and reconciled afterwards on this
	// goroutine, which is the only writer of the cache.
	fetched := make([][]rpc.BatchResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			addrs := make([][]string, len(group))
			for si, subBatch := range group {
				addrs[si] = make([]string, len(subBatch))
				for ai, acct := range subBatch {
					addrs[si][ai] = acct.Address
				}
			}

			reqCtx, cancel := context.WithTimeout(gctx, l.cfg.RequestTimeout)
			defer cancel()

			results, err := l.fetcher.GetMultipleAccountsBatch(reqCtx, addrs, l.cfg.Commitment)
			if err != nil {
				// Failed group: its addresses get retried next cycle.
				l.logger.Warn("failed to load account group", "err", err)
				l.statsMu.Lock()
				l.stats.FailedBatches += int64(len(group))
				l.statsMu.Unlock()
				return nil
			}
			fetched[i] = results
			return nil
		})
	}
	g.Wait()

	// Discard everything if a stop raced the cycle: no callback may fire
	// once Stop has been acknowledged.
	if ctx.Err() != nil {
		return
	}

	for i, group := range groups {
		if fetched[i] == nil {
			continue
		}
		l.reconcileGroup(group, fetched[i])
	}

	l.statsMu.Lock()
	l.stats.Cycles++
	l.stats.Batches += int64(len(subBatches))
	l.statsMu.Unlock()

	l.logger.Debug("poll cycle complete",
		"accounts", len(accounts),
		"sub_batches", len(subBatches),
		"groups", len(groups),
		"duration", time.Since(start),
	)
}

// reconcileGroup compares one group's responses against the cache and
// dispatches callbacks for changed accounts.
func (l *Loader) reconcileGroup(group [][]registry.WatchedAccount, results []rpc.BatchResult) {
	for si, subBatch := range group {
		if si >= len(results) {
			break
		}
		res := results[si]
		if res.Err != nil {
			l.logger.Warn("failed to load sub-batch", "err", res.Err, "accounts", len(subBatch))
			l.statsMu.Lock()
			l.stats.FailedBatches++
			l.statsMu.Unlock()
			continue
		}

		for ai, acct := range subBatch {
			var entry rpc.AccountEntry
			if ai < len(res.Entries) {
				entry = res.Entries[ai]
			}
			if entry.Err != nil {
				// Undecodable payload; leave the cache alone and retry
				// next cycle.
				continue
			}
			l.reconcileAccount(acct, entry.Account, res.Slot)
		}
	}
}

// reconcileAccount applies the cache-compare-and-skip rule for one account.
func (l *Loader) reconcileAccount(acct registry.WatchedAccount, info *rpc.AccountInfo, slot uint64) {
	cached, ok := l.cache[acct.Address]
	if ok && slot <= cached.slot {
		// Stale or duplicate observation; never downgrade the cache.
		l.statsMu.Lock()
		l.stats.StaleSkips++
		l.statsMu.Unlock()
		return
	}

	var newBuf []byte
	if info != nil {
		newBuf = info.Data
	}

	if ok && sameContent(cached.buffer, newBuf) {
		// Slot advanced but content is identical; nothing to report.
		return
	}

	for _, cb := range acct.Callbacks {
		cb(newBuf, slot)
	}
	l.cache[acct.Address] = bufferAndSlot{slot: slot, buffer: newBuf}

	l.statsMu.Lock()
	l.stats.Notifications += int64(len(acct.Callbacks))
	l.statsMu.Unlock()
}

// sameContent reports whether two buffers hold the same account content.
// A nil buffer (account absent) is distinct from an empty one.
func sameContent(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}
