package opt

import "sync"

// Live progress of runs still in flight, keyed by run id. Finished runs are
// persisted by the caller and dropped from here.
var (
	mu    sync.Mutex
	store = map[string]Progress{}
)

func RecordProgress(runID string, p Progress) {
	mu.Lock()
	store[runID] = p
	mu.Unlock()
}

func GetProgress(runID string) (Progress, bool) {
	mu.Lock()
	defer mu.Unlock()
	p, ok := store[runID]
	return p, ok
}

func ForgetProgress(runID string) {
	mu.Lock()
	delete(store, runID)
	mu.Unlock()
}
