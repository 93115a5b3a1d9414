package fetchlib

import "net/http"

const (
	// Header keys
	USER_AGENT_KEY = "User-Agent"
)

// Headers is an ordered list of request headers. Insertion order is
// preserved on the wire; setting an existing key overwrites its value
// in place (last write wins).
type Headers []Header

// Get returns the index of the header with the given key.
// If the header is not found, the second return value is false.
func (h Headers) Get(key string) (index int, have bool) {
	for i, x := range h {
		if x.Key != key {
			continue
		}
		index = i
		have = true
		break
	}
	return
}

// Value returns the value of the header with the given key, or ""
// if the key is not present.
func (h Headers) Value(key string) (value string) {
	i, ok := h.Get(key)
	if ok {
		value = h[i].Value
	}
	return
}

// InitOrUpdate sets the header only if the key is not present yet.
func (h *Headers) InitOrUpdate(key, value string) {
	_, ok := h.Get(key)
	if ok {
		return
	}
	*h = append(*h, Header{key, value})
}

// Update sets the header with the given key and value, overwriting
// any existing value for the key.
func (h *Headers) Update(key, value string) {
	i, ok := h.Get(key)
	if ok {
		(*h)[i] = Header{key, value}
		return
	}
	*h = append(*h, Header{key, value})
}

// Delete removes the header with the given key, if present.
func (h *Headers) Delete(key string) {
	i, ok := h.Get(key)
	if !ok {
		return
	}
	*h = append((*h)[:i], (*h)[i+1:]...)
}

// Clone returns a copy of the headers that can be mutated independently.
func (h Headers) Clone() (c Headers) {
	c = make(Headers, len(h))
	copy(c, h)
	return
}

// Set sets the headers in the given http.Header.
func (h Headers) Set(header http.Header) {
	for _, x := range h {
		x.Set(header)
	}
}

// Header represents a key-value pair.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Set sets the header in the given http.Header.
func (h *Header) Set(header http.Header) {
	header.Set(h.Key, h.Value)
}
