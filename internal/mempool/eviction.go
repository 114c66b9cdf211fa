package mempool

import "sort"

// Evict trims the pool down to maxSize by dropping the lowest-tip entries
// first, regardless of lane. Submit already evicts inline when a higher-tip
// transaction arrives at capacity; Evict is for periodic maintenance after
// maxSize is lowered at runtime or after a burst of low-tip admissions.
func (p *Pool) Evict() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) <= p.maxSize {
		return 0
	}

	entries := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Tx.Tip().Cmp(entries[j].Tx.Tip()) < 0
	})

	evicted := 0
	for len(p.entries) > p.maxSize && evicted < len(entries) {
		p.removeLocked(entries[evicted].TxHash)
		evicted++
	}
	return evicted
}
