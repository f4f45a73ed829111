package scheduler

import "maps"

// GetCellStatusMap returns a copy of the internal cell status map.
// This is exported for testing purposes only.
func (s *Scheduler) GetCellStatusMap() map[int]CellStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.cellStatus)
}
