package source

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"

	"github.com/gobeaver/filestag"
)

// Iterator walks the accepted elements of a Source once. It serves the
// snapshot when the source has one and a live backend cursor otherwise.
type Iterator struct {
	src       *Source
	items     []item
	reduced   bool
	live      bool
	cursor    filestag.Cursor
	pos       int
	index     int
	processed int
	current   Element
	err       error
	done      bool
}

// Iterate starts a new enumeration.
func (s *Source) Iterate() *Iterator {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := &Iterator{src: s}
	if err := s.checkOpen("iterate"); err != nil {
		it.err = err
		it.done = true
		return it
	}
	if s.snapshot != nil {
		it.items = s.snapshot
		it.reduced = s.reduced
	} else {
		it.live = true
	}
	return it
}

// Next advances to the next accepted element. It returns false at the end
// of the enumeration or on error; Err tells the two apart.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}

	s := it.src
	for {
		if s.opts.MaxCount > 0 && it.processed >= s.opts.MaxCount && !it.reduced {
			return it.finish(nil)
		}

		e, name, ok, err := it.candidate(ctx)
		if err != nil {
			return it.finish(err)
		}
		if !ok {
			return it.finish(nil)
		}

		var data []byte
		if !s.opts.NamesOnly {
			data, err = s.Fetch(ctx, e.Filename)
			if err != nil && !filestag.IsNotExist(err) {
				return it.finish(err)
			}
			if data == nil {
				// removed after it was listed
				s.log().Debug("skipping vanished file", slog.String("name", e.Filename))
				continue
			}
		}

		it.processed++
		it.current = Element{Name: name, Entry: e, Data: data}
		return true
	}
}

// candidate returns the next entry accepted by shard and filter.
func (it *Iterator) candidate(ctx context.Context) (filestag.FileListEntry, string, bool, error) {
	s := it.src
	for {
		var e filestag.FileListEntry
		name := ""

		if it.live {
			if it.cursor == nil {
				cur, err := s.backend.Scan(ctx, s.scanOptions())
				if err != nil {
					return e, "", false, err
				}
				it.cursor = cur
			}
			next, err := s.nextCandidate(ctx, it.cursor)
			if errors.Is(err, io.EOF) {
				return e, "", false, nil
			}
			if err != nil {
				return e, "", false, err
			}
			e = next
		} else {
			if it.pos >= len(it.items) {
				return e, "", false, nil
			}
			select {
			case <-ctx.Done():
				return e, "", false, ctx.Err()
			default:
			}
			e, name = it.items[it.pos].entry, it.items[it.pos].name
			it.pos++
		}

		index := it.index
		it.index++

		if it.reduced {
			return e, name, true, nil
		}
		name, ok := s.decide(index, e)
		if ok {
			return e, name, true, nil
		}
	}
}

func (it *Iterator) finish(err error) bool {
	it.done = true
	it.err = err
	it.current = Element{}
	if it.cursor != nil {
		_ = it.cursor.Close()
		it.cursor = nil
	}
	return false
}

// Element returns the current element.
func (it *Iterator) Element() Element {
	return it.current
}

// Err returns the error that ended the enumeration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Index returns the number of candidates seen so far, skipped ones
// included.
func (it *Iterator) Index() int {
	return it.index
}

// Processed returns the number of accepted elements so far.
func (it *Iterator) Processed() int {
	return it.processed
}

// Close stops the enumeration early.
func (it *Iterator) Close() error {
	if it.done {
		return nil
	}
	it.finish(nil)
	return nil
}

// All returns the enumeration as a range-over-func sequence. An error is
// yielded once, as the last pair.
func (s *Source) All(ctx context.Context) iter.Seq2[Element, error] {
	return func(yield func(Element, error) bool) {
		it := s.Iterate()
		defer it.Close()
		for it.Next(ctx) {
			if !yield(it.Element(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(Element{}, err)
		}
	}
}
