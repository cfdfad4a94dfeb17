package mailbox

import (
	"container/heap"
	"iter"
)

// MergeByDate merges per-folder sequences, each already ordered newest
// first, into one sequence ordered newest first. Sources are pulled
// lazily: at most one envelope per source is held at a time. The merged
// sequence stops at the first error from any source.
func MergeByDate(sources ...iter.Seq2[*Envelope, error]) iter.Seq2[*Envelope, error] {
	return func(yield func(*Envelope, error) bool) {
		h := make(envelopeHeap, 0, len(sources))
		var stops []func()
		defer func() {
			for _, stop := range stops {
				stop()
			}
		}()

		for i, src := range sources {
			next, stop := iter.Pull2(src)
			stops = append(stops, stop)

			env, err, ok := next()
			if !ok {
				continue
			}
			if err != nil {
				yield(nil, err)
				return
			}
			h = append(h, &mergeItem{env: env, next: next, order: i})
		}
		heap.Init(&h)

		for h.Len() > 0 {
			top := h[0]
			if !yield(top.env, nil) {
				return
			}

			env, err, ok := top.next()
			switch {
			case !ok:
				heap.Pop(&h)
			case err != nil:
				yield(nil, err)
				return
			default:
				top.env = env
				heap.Fix(&h, 0)
			}
		}
	}
}

type mergeItem struct {
	env   *Envelope
	next  func() (*Envelope, error, bool)
	order int
}

// envelopeHeap is a max-heap on envelope date. Ties go to the source
// listed first so the merge is deterministic.
type envelopeHeap []*mergeItem

func (h envelopeHeap) Len() int { return len(h) }

func (h envelopeHeap) Less(i, j int) bool {
	if !h[i].env.Date.Equal(h[j].env.Date) {
		return h[i].env.Date.After(h[j].env.Date)
	}
	return h[i].order < h[j].order
}

func (h envelopeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *envelopeHeap) Push(x any) { *h = append(*h, x.(*mergeItem)) }

func (h *envelopeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
