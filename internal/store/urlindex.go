// Package store provides an in-process URL to catalog id index using a Bloom filter and an LRU cache.
package store

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// URLIndex remembers which canonical URLs already have a catalog id.
// It is a read-through shortcut only; the catalog's unique constraint stays authoritative.
type URLIndex struct {
	bloom             *bloom.BloomFilter
	ids               *lru.Cache[string, string]
	mutex             sync.RWMutex
	capacity          int
	falsePositiveRate float64
}

// NewURLIndex creates an index holding up to capacity URLs.
func NewURLIndex(capacity int, falsePositiveRate float64) (*URLIndex, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("url index capacity must be positive, got %d", capacity)
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		return nil, fmt.Errorf("bloom false positive rate must be in (0, 1), got %v", falsePositiveRate)
	}

	ids, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create url index cache: %w", err)
	}

	return &URLIndex{
		bloom:             bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		ids:               ids,
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
	}, nil
}

// Get returns the catalog id recorded for url.
func (x *URLIndex) Get(url string) (string, bool) {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	// Most submissions are new URLs; the filter answers those without touching the cache.
	if !x.bloom.TestString(url) {
		return "", false
	}
	return x.ids.Get(url)
}

// Put records the catalog id for url. Empty values are ignored.
func (x *URLIndex) Put(url, id string) {
	if url == "" || id == "" {
		return
	}

	x.mutex.Lock()
	defer x.mutex.Unlock()

	x.bloom.AddString(url)
	x.ids.Add(url, id)
}

// Load replaces the index contents with entries (url to id).
func (x *URLIndex) Load(entries map[string]string) {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	x.reset()
	for url, id := range entries {
		if url == "" || id == "" {
			continue
		}
		x.bloom.AddString(url)
		x.ids.Add(url, id)
	}
}

// Len returns the number of cached URLs.
func (x *URLIndex) Len() int {
	x.mutex.RLock()
	defer x.mutex.RUnlock()
	return x.ids.Len()
}

func (x *URLIndex) reset() {
	x.bloom = bloom.NewWithEstimates(uint(x.capacity), x.falsePositiveRate)
	x.ids.Purge()
}
