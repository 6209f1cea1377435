package auction

import "github.com/google/btree"

type scheduleItem struct {
	block uint64
	id    uint64
}

func lessScheduleItem(a, b scheduleItem) bool {
	if a.block != b.block {
		return a.block < b.block
	}
	return a.id < b.id
}

// schedule indexes active auctions by the block of their next price step so
// a block tick only visits auctions that are due.
type schedule struct {
	tree    *btree.BTreeG[scheduleItem]
	journal func(func())
}

func newSchedule(journal func(func())) *schedule {
	return &schedule{tree: btree.NewG[scheduleItem](16, lessScheduleItem), journal: journal}
}

func (s *schedule) record(undo func()) {
	if s.journal != nil {
		s.journal(undo)
	}
}

func (s *schedule) add(item scheduleItem) {
	if _, replaced := s.tree.ReplaceOrInsert(item); replaced {
		return
	}
	s.record(func() { s.tree.Delete(item) })
}

func (s *schedule) remove(item scheduleItem) {
	if _, found := s.tree.Delete(item); !found {
		return
	}
	s.record(func() { s.tree.ReplaceOrInsert(item) })
}

// due returns every item scheduled at or before block, in order.
func (s *schedule) due(block uint64) []scheduleItem {
	var out []scheduleItem
	s.tree.Ascend(func(item scheduleItem) bool {
		if item.block > block {
			return false
		}
		out = append(out, item)
		return true
	})
	return out
}

func (s *schedule) len() int { return s.tree.Len() }

func (s *schedule) reset() { s.tree.Clear(false) }
