// Package store provides the key-value persistence behind the revision cache.
package store

import (
	"context"
	"net/url"
)

// KV is a persistent key-value store. Values are opaque blobs.
type KV interface {
	// Get returns the value stored under key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Compile-time interface conformance checks.
var (
	_ KV = (*Memory)(nil)
	_ KV = (*SQLStore)(nil)
	_ KV = (*scoped)(nil)
)

// Namespace derives a store namespace from a tool name and a repository path,
// e.g. Namespace("perforce", "ssl:p4:1666") = "perforce.ssl%3Ap4%3A1666".
// Distinct repository paths always yield distinct namespaces.
func Namespace(tool, repoPath string) string {
	return tool + "." + url.QueryEscape(repoPath)
}

type scoped struct {
	kv     KV
	prefix string
}

// Scoped returns a view of kv in which every key is prefixed with namespace.
// Closing the view does not close kv.
func Scoped(kv KV, namespace string) KV {
	return &scoped{kv: kv, prefix: namespace + "/"}
}

func (s *scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.kv.Get(ctx, s.prefix+key)
}

func (s *scoped) Put(ctx context.Context, key string, value []byte) error {
	return s.kv.Put(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, s.prefix+key)
}

func (s *scoped) Close() error {
	return nil
}
