package routing

import "sync"

// decayAtTotal is the selection count at which the diversity counter decays.
// Halving keeps the relative shares while letting recent selections dominate.
const decayAtTotal = 50

// usageCounter tracks how often each model has been selected recently.
// It feeds the diversity override: when one model dominates, routing nudges
// work toward under-used candidates.
type usageCounter struct {
	mu     sync.Mutex
	counts map[string]int
	total  int
}

func newUsageCounter() *usageCounter {
	return &usageCounter{counts: make(map[string]int)}
}

// Record accounts one selection and decays the counter once the total
// reaches the decay point. Counts never drop below 1, so a model that was
// ever selected keeps a nonzero footprint.
func (c *usageCounter) Record(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[model]++
	c.total++

	if c.total >= decayAtTotal {
		total := 0
		for name, n := range c.counts {
			n /= 2
			if n < 1 {
				n = 1
			}
			c.counts[name] = n
			total += n
		}
		c.total = total
	}
}

// Dominant returns the most-selected model and its share of all selections.
// Share is 0 when nothing has been recorded yet.
func (c *usageCounter) Dominant() (string, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.total == 0 {
		return "", 0
	}
	var top string
	var topCount int
	for name, n := range c.counts {
		if n > topCount {
			top, topCount = name, n
		}
	}
	return top, float64(topCount) / float64(c.total)
}

// Share returns a model's share of all selections, 0 when none recorded.
func (c *usageCounter) Share(model string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.total == 0 {
		return 0
	}
	return float64(c.counts[model]) / float64(c.total)
}
