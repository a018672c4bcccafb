package serving

import (
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedPrediction is one memoized model output.
type CachedPrediction struct {
	Label      int
	Confidence float64
	Proba      []float64
}

// Cache memoizes predictions for repeated feature vectors. Keys embed
// the model generation, so a reload implicitly invalidates old entries.
type Cache struct {
	entries *lru.Cache[string, CachedPrediction]
}

func NewCache(size int) (*Cache, error) {
	entries, err := lru.New[string, CachedPrediction](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Key builds the canonical cache key for a feature vector.
func Key(generation uint64, vector []float64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(generation, 10))
	for _, v := range vector {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

func (c *Cache) Get(key string) (CachedPrediction, bool) {
	return c.entries.Get(key)
}

func (c *Cache) Add(key string, value CachedPrediction) {
	c.entries.Add(key, value)
}

func (c *Cache) Len() int {
	return c.entries.Len()
}
