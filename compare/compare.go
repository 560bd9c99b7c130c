// CLAUDE:SUMMARY Content-equivalence cascade (bytes, digest, adapter signature) with per-call memoization of the reference side.
// CLAUDE:EXPORTS Method, MethodNone, MethodBytes, MethodHash, MethodSignature, Reference, NewReference
// Package compare decides whether a candidate body is the same feed as a
// reference body already fetched and parsed.
//
// The cascade runs cheapest first and stops at the first success:
// byte equality, equal digests, then equal adapter signatures.
package compare

import (
	"bytes"
	"sync"

	"github.com/hazyhaar/feedcanon/feed"
)

// Method names the comparison that established a match.
type Method string

const (
	MethodNone      Method = ""
	MethodBytes     Method = "bytes"
	MethodHash      Method = "hash"
	MethodSignature Method = "signature"
)

// Reference is one side of every comparison made during a single
// canonicalization. Its digest and signature are computed at most once.
// Safe for concurrent use.
type Reference[F any] struct {
	body    []byte
	parsed  F
	adapter feed.Adapter[F]
	hasher  Hasher

	hashOnce sync.Once
	hash     string
	sigOnce  sync.Once
	sig      string
}

// NewReference wraps an already-parsed reference body. A nil hasher means
// XXHash.
func NewReference[F any](adapter feed.Adapter[F], hasher Hasher, body []byte, parsed F) *Reference[F] {
	if hasher == nil {
		hasher = XXHash
	}
	return &Reference[F]{body: body, parsed: parsed, adapter: adapter, hasher: hasher}
}

// Body returns the reference body.
func (r *Reference[F]) Body() []byte { return r.body }

// Feed returns the parsed reference feed.
func (r *Reference[F]) Feed() F { return r.parsed }

func (r *Reference[F]) digest() string {
	r.hashOnce.Do(func() { r.hash = r.hasher.Sum(r.body) })
	return r.hash
}

func (r *Reference[F]) signature() string {
	r.sigOnce.Do(func() { r.sig = safeSignature(r.adapter, r.parsed) })
	return r.sig
}

// Match runs the cascade against candidate. An empty candidate, an
// unparseable candidate or a panicking adapter gives MethodNone.
func (r *Reference[F]) Match(candidate []byte) Method {
	if len(candidate) == 0 {
		return MethodNone
	}
	if bytes.Equal(r.body, candidate) {
		return MethodBytes
	}
	if r.hasher.Sum(candidate) == r.digest() {
		return MethodHash
	}
	ref := r.signature()
	if ref == "" {
		return MethodNone
	}
	parsed, ok := safeParse(r.adapter, candidate)
	if !ok {
		return MethodNone
	}
	if safeSignature(r.adapter, parsed) == ref {
		return MethodSignature
	}
	return MethodNone
}

// MatchReference compares two references, reusing both memoized sides.
func (r *Reference[F]) MatchReference(other *Reference[F]) Method {
	if len(other.body) == 0 || len(r.body) == 0 {
		return MethodNone
	}
	if bytes.Equal(r.body, other.body) {
		return MethodBytes
	}
	if r.digest() == other.digest() && r.hasher.Name() == other.hasher.Name() {
		return MethodHash
	}
	if sig := r.signature(); sig != "" && sig == other.signature() {
		return MethodSignature
	}
	return MethodNone
}

func safeParse[F any](a feed.Adapter[F], body []byte) (f F, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	parsed, err := a.Parse(body)
	if err != nil {
		return f, false
	}
	return parsed, true
}

func safeSignature[F any](a feed.Adapter[F], f F) (sig string) {
	defer func() {
		if recover() != nil {
			sig = ""
		}
	}()
	return a.Signature(f)
}
