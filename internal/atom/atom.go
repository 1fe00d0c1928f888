// Package atom implements process-wide string interning in named buckets
// (spec §3 "Atom"). An atom never disappears once created for the
// lifetime of its bucket: buckets are append-only tables, identified by a
// small integer handed out at Lookup/New time.
package atom

import (
	"fmt"
	"sync"
)

// Bucket is an interning table for one namespace of identifiers.
type Bucket struct {
	mu      sync.RWMutex
	byText  map[string]Atom
	byAtom  []string
	name    string
}

// Atom is an interned string id. The zero value is never assigned to a
// real string and is used as the "no atom" sentinel.
type Atom uint32

// NewBucket creates an empty, named interning table.
func NewBucket(name string) *Bucket {
	return &Bucket{
		name:   name,
		byText: make(map[string]Atom, 64),
		byAtom: make([]string, 1, 64), // index 0 reserved for the zero Atom
	}
}

// Predefined buckets mirroring spec §6's MSG bucket and a generic USER
// bucket for program-defined identifiers (event names, variable keys).
var (
	MSG  = NewBucket("MSG")
	USER = NewBucket("USER")
)

// Intern returns the Atom for text, creating it if this is the first time
// text has been seen in this bucket. O(1) amortized.
func (b *Bucket) Intern(text string) Atom {
	b.mu.RLock()
	if a, ok := b.byText[text]; ok {
		b.mu.RUnlock()
		return a
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.byText[text]; ok {
		return a
	}
	a := Atom(len(b.byAtom))
	b.byAtom = append(b.byAtom, text)
	b.byText[text] = a
	return a
}

// Lookup returns the Atom for text without creating it.
func (b *Bucket) Lookup(text string) (Atom, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.byText[text]
	return a, ok
}

// String returns the text an Atom was interned from. Panics if the atom
// was not produced by this bucket, since that is always a programming
// error (atoms never cross buckets).
func (b *Bucket) String(a Atom) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if int(a) >= len(b.byAtom) {
		panic(fmt.Sprintf("atom: %s bucket has no atom %d", b.name, a))
	}
	return b.byAtom[a]
}

// EventName splits a "type:sub-type" event atom into its two atoms,
// interning each in the MSG bucket independently (spec §3 "Message").
func EventName(typ, subType string) (Atom, Atom) {
	return MSG.Intern(typ), MSG.Intern(subType)
}
