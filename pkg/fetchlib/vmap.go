package fetchlib

import (
	"sync"
)

// VMap is a thread-safe generic map guarded by a read-write mutex.
type VMap[kT comparable, vT any] struct {
	kv map[kT]vT
	mu sync.RWMutex
}

// Make initializes the internal map. Call this to reset the map or if
// using a zero-value VMap.
func (vm *VMap[kT, vT]) Make() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.kv = make(map[kT]vT)
}

// Set stores a value for the given key.
func (vm *VMap[kT, vT]) Set(key kT, val vT) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.kv == nil {
		vm.kv = make(map[kT]vT)
	}
	vm.kv[key] = val
}

// Get retrieves a value for the given key. The second return value
// reports whether the key was present.
func (vm *VMap[kT, vT]) Get(key kT) (val vT, ok bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	val, ok = vm.kv[key]
	return
}

// Delete removes a key from the map. Missing keys are a no-op.
func (vm *VMap[kT, vT]) Delete(key kT) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	delete(vm.kv, key)
}

// Len returns the number of stored entries.
func (vm *VMap[kT, vT]) Len() (n int) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	n = len(vm.kv)
	return
}

// Range iterates over all key-value pairs while holding the read lock.
// If f returns false, iteration stops early. f must not modify the map.
func (vm *VMap[kT, vT]) Range(f func(key kT, val vT) bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for k, v := range vm.kv {
		if !f(k, v) {
			return
		}
	}
}
