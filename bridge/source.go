package bridge

import "iter"

// Source is an upstream sequence of request items pulled one at a time
type Source[I any] interface {
	Next() (I, bool)
}

// SourceFunc adapts a function to a Source
type SourceFunc[I any] func() (I, bool)

// Next calls f
func (f SourceFunc[I]) Next() (I, bool) {
	return f()
}

type sliceSource[I any] struct {
	items []I
}

// FromSlice returns a Source over items
func FromSlice[I any](items []I) Source[I] {
	return &sliceSource[I]{items: items}
}

func (s *sliceSource[I]) Next() (I, bool) {
	if len(s.items) == 0 {
		var zero I
		return zero, false
	}
	v := s.items[0]
	s.items = s.items[1:]
	return v, true
}

// SeqSource pulls from an iter.Seq. Close stops the underlying iterator.
type SeqSource[I any] struct {
	next func() (I, bool)
	stop func()
}

// FromSeq returns a Source over seq
func FromSeq[I any](seq iter.Seq[I]) *SeqSource[I] {
	next, stop := iter.Pull(seq)
	return &SeqSource[I]{next: next, stop: stop}
}

// Next pulls the next item
func (s *SeqSource[I]) Next() (I, bool) {
	return s.next()
}

// Close stops the iterator
func (s *SeqSource[I]) Close() error {
	s.stop()
	return nil
}
