package outbox

import "testing"

func TestComputeBatchSize_DynamicOffReturnsBase(t *testing.T) {
	if got := computeBatchSize(50, 5000, false); got != 50 {
		t.Fatalf("want 50, got %d", got)
	}
}

func TestComputeBatchSize_HighBacklogDoubles(t *testing.T) {
	if got := computeBatchSize(50, 1500, true); got != 100 {
		t.Fatalf("want 100, got %d", got)
	}
}

func TestComputeBatchSize_HighBacklogCapsAt500(t *testing.T) {
	if got := computeBatchSize(400, 1500, true); got != 500 {
		t.Fatalf("want 500, got %d", got)
	}
}

func TestComputeBatchSize_ModerateBacklogGrowsByHalf(t *testing.T) {
	if got := computeBatchSize(100, 600, true); got != 150 {
		t.Fatalf("want 150, got %d", got)
	}
}

func TestComputeBatchSize_ModerateBacklogCapsAt300(t *testing.T) {
	if got := computeBatchSize(250, 600, true); got != 300 {
		t.Fatalf("want 300, got %d", got)
	}
}

func TestComputeBatchSize_ThinBacklogShrinksTo10(t *testing.T) {
	if got := computeBatchSize(50, 5, true); got != 10 {
		t.Fatalf("want 10, got %d", got)
	}
}

func TestComputeBatchSize_ThinBacklogNeverExceedsBase(t *testing.T) {
	if got := computeBatchSize(5, 3, true); got != 5 {
		t.Fatalf("want 5, got %d", got)
	}
}

func TestComputeBatchSize_MidRangeReturnsBase(t *testing.T) {
	if got := computeBatchSize(50, 200, true); got != 50 {
		t.Fatalf("want 50, got %d", got)
	}
}
