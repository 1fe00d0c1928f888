package rdrbridge

// Batch coalesces the DOM patches queued for one target coroutine
// between two flushes, merging consecutive append/prepend patches
// against the same anchor into a single patch instead of sending one
// renderer message per mutation (spec §11 "DOM-mutation batching",
// grounded on original_source's rdr_msg.c). Any other op, or a change of
// anchor, ends the run and starts a new pending entry; those ops are
// forwarded as-is.
type Batch struct {
	pending []DOMPatch
}

// Add appends patch to the batch, merging its content into the previous
// pending entry when both are coalescable.
func (b *Batch) Add(patch DOMPatch) {
	if n := len(b.pending); n > 0 {
		last := &b.pending[n-1]
		if coalescable(last.Op) && last.Op == patch.Op && last.AnchorKey == patch.AnchorKey {
			if patch.Op == "prepend" {
				last.ContentHTML = patch.ContentHTML + last.ContentHTML
			} else {
				last.ContentHTML += patch.ContentHTML
			}
			return
		}
	}
	b.pending = append(b.pending, patch)
}

// Flush returns every pending patch in arrival order and resets the
// batch for the next step.
func (b *Batch) Flush() []DOMPatch {
	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	return out
}

// coalescable reports whether op is pure content concatenation: two
// adjacent appends (or prepends) against the same anchor carry no
// information a single merged one doesn't.
func coalescable(op string) bool {
	return op == "append" || op == "prepend"
}
