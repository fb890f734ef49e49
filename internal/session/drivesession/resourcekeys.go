package drivesession

import (
	"strings"
	"sync"
)

// resourceKeys remembers the resource keys of link-shared files seen while
// listing. Drive rejects content requests for such files unless the key is
// sent in the X-Goog-Drive-Resource-Keys header.
type resourceKeys struct {
	mu   sync.RWMutex
	keys map[string]string
}

func newResourceKeys() *resourceKeys {
	return &resourceKeys{keys: make(map[string]string)}
}

func (r *resourceKeys) add(fileID, resourceKey string) {
	if resourceKey == "" {
		return
	}
	r.mu.Lock()
	r.keys[fileID] = resourceKey
	r.mu.Unlock()
}

// header builds the X-Goog-Drive-Resource-Keys value for fileIDs
func (r *resourceKeys) header(fileIDs ...string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pairs []string
	for _, id := range fileIDs {
		if key, ok := r.keys[id]; ok {
			pairs = append(pairs, id+"/"+key)
		}
	}
	return strings.Join(pairs, ",")
}
