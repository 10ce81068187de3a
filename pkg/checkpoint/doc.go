// Package checkpoint records which query keys have been fully harvested.
//
// Progress is kept at key granularity: a key is either completed or it is
// not, and a key that did not finish is harvested again from its first page
// on the next run. The completed set lives in memory and is persisted by
// Flush as a new snapshot file named completed-<ULID>.json. ULIDs sort by
// creation time, so the latest snapshot is the lexicographically greatest
// name. Snapshots are written to a temporary file, synced and renamed into
// place; an existing snapshot is never rewritten.
//
// Usage:
//
//	store, err := checkpoint.NewStore(dir, runID, log)
//	done, err := store.Load()
//	for _, key := range keys {
//	    if done.Contains(key) {
//	        continue
//	    }
//	    // ... harvest key ...
//	    store.MarkCompleted(key)
//	}
//	_, err = store.Flush()
package checkpoint
