package store

import "sync"

// memoryArea is the storage shared by sibling Memory handles.
type memoryArea struct {
	mu      sync.Mutex
	values  map[string]string
	handles []*Memory
}

// Memory is an in-process Store. Handles created with Sibling share one area
// and each is notified of the others' writes, which lets tests run several
// "processes" against one store.
type Memory struct {
	area *memoryArea
	subs subscribers
}

// NewMemory returns a handle on a fresh, empty area.
func NewMemory() *Memory {
	area := &memoryArea{values: make(map[string]string)}
	m := &Memory{area: area}
	area.handles = append(area.handles, m)
	return m
}

// Sibling returns a new handle on the same area as m.
func (m *Memory) Sibling() *Memory {
	m.area.mu.Lock()
	defer m.area.mu.Unlock()
	s := &Memory{area: m.area}
	m.area.handles = append(m.area.handles, s)
	return s
}

func (m *Memory) Get(key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	m.area.mu.Lock()
	defer m.area.mu.Unlock()
	v, ok := m.area.values[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.area.mu.Lock()
	m.area.values[key] = value
	others := m.others()
	m.area.mu.Unlock()

	for _, o := range others {
		o.subs.notify(Change{Key: key})
	}
	return nil
}

func (m *Memory) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.area.mu.Lock()
	_, existed := m.area.values[key]
	delete(m.area.values, key)
	others := m.others()
	m.area.mu.Unlock()

	if existed {
		for _, o := range others {
			o.subs.notify(Change{Key: key, Removed: true})
		}
	}
	return nil
}

// SetRaw writes value without validating it or notifying anyone. Tests use it
// to plant corrupt data.
func (m *Memory) SetRaw(key, value string) {
	m.area.mu.Lock()
	m.area.values[key] = value
	m.area.mu.Unlock()
}

func (m *Memory) Subscribe(fn func(Change)) func() {
	return m.subs.add(fn)
}

// Close detaches the handle from its area.
func (m *Memory) Close() error {
	m.area.mu.Lock()
	defer m.area.mu.Unlock()
	for i, h := range m.area.handles {
		if h == m {
			m.area.handles = append(m.area.handles[:i], m.area.handles[i+1:]...)
			break
		}
	}
	return nil
}

// others must be called with area.mu held.
func (m *Memory) others() []*Memory {
	out := make([]*Memory, 0, len(m.area.handles))
	for _, h := range m.area.handles {
		if h != m {
			out = append(out, h)
		}
	}
	return out
}
