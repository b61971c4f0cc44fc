package timerstore

// Raw returns the encoded value stored under key.
func (m *MemoryStore) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), entry.value...), true
}
