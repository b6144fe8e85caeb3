package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// Descriptor identifies a fetchable request. The URL is kept verbatim, so
// two URLs that differ only in query parameter order are distinct.
type Descriptor struct {
	Method   string
	URL      string
	BodyHash string
}

// NewDescriptor builds a descriptor, defaulting the method to GET and
// hashing the body when one is present. The method is kept as given.
func NewDescriptor(method, rawURL string, body []byte) Descriptor {
	if method == "" {
		method = http.MethodGet
	}
	d := Descriptor{Method: method, URL: rawURL}
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		d.BodyHash = hex.EncodeToString(sum[:])
	}
	return d
}

// Key renders the descriptor as method:url:bodyHash
func (d Descriptor) Key() string {
	return d.Method + ":" + d.URL + ":" + d.BodyHash
}

func (d Descriptor) String() string { return d.Key() }

// StorageKey derives a fixed-length backend key from the descriptor,
// prefixed with prefix
func StorageKey(prefix string, d Descriptor) string {
	sum := sha256.Sum256([]byte(d.Key()))
	return prefix + hex.EncodeToString(sum[:])
}
