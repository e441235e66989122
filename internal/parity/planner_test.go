// internal/parity/planner_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package parity

import "testing"

func TestPlanBothConfiguredIsUnchanged(t *testing.T) {
	block, redundancy := Plan(1<<20, 4096, 20, true)
	if block != 4096 || redundancy != 20 {
		t.Errorf("Plan = (%d, %d), want (4096, 20)", block, redundancy)
	}
}

func TestPlanOnlyBlockConfiguredRaisesFloor(t *testing.T) {
	// size/block = 4 data slices; the MinParitySlices=4 floor needs
	// ceil(400/4)=100% redundancy, clamped to MaxRedundancy=80, well
	// above the caller's requested 1%.
	block, redundancy := Plan(2048, 512, 1, false)
	if block != 512 {
		t.Errorf("block = %d, want 512", block)
	}
	if redundancy != MaxRedundancy {
		t.Errorf("redundancy = %d, want %d (floor clamped to max)", redundancy, MaxRedundancy)
	}
}

func TestPlanNeitherConfiguredPicksPowerOfTwoBlock(t *testing.T) {
	block, redundancy := Plan(16<<20, 0, DefaultRedundancyForTest, false)
	if block&(block-1) != 0 {
		t.Errorf("block size %d is not a power of two", block)
	}
	if block < MinBlock || block > MaxBlock {
		t.Errorf("block size %d outside [%d, %d]", block, MinBlock, MaxBlock)
	}
	if redundancy < 1 || redundancy > MaxRedundancy {
		t.Errorf("redundancy %d outside [1, %d]", redundancy, MaxRedundancy)
	}
}

const DefaultRedundancyForTest = 10

func TestPlanRedundancyNeverExceedsMax(t *testing.T) {
	_, redundancy := Plan(1<<10, 0, 1000, true)
	if redundancy > MaxRedundancy {
		t.Errorf("redundancy = %d, want <= %d", redundancy, MaxRedundancy)
	}
}

func TestPlanTinyFileGetsAtLeastOneDataSlice(t *testing.T) {
	block, redundancy := Plan(1, 0, 10, false)
	if block < MinBlock {
		t.Errorf("block = %d, want >= MinBlock %d", block, MinBlock)
	}
	if redundancy < 1 {
		t.Errorf("redundancy = %d, want >= 1", redundancy)
	}
}
