package memory

// RateCounterLen returns the number of live rate window counts
func (m *Memory) RateCounterLen() int {
	m.rateCounter.mu.Lock()
	defer m.rateCounter.mu.Unlock()
	return len(m.rateCounter.counts)
}
