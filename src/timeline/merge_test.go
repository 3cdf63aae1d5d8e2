package timeline

import (
	"testing"
	"time"

	"nimbusworker/src/model"
)

func item(sec int, content string) model.TimelineItem {
	return model.TimelineItem{
		Timestamp: time.Date(2026, 3, 1, 10, 0, sec, 0, time.UTC),
		Content:   content,
	}
}

func TestMergeInterleavesByTimestamp(t *testing.T) {
	plans := []model.TimelineItem{item(1, "p1"), item(4, "p2"), item(6, "p3")}
	thoughts := []model.TimelineItem{item(2, "t1"), item(3, "t2"), item(5, "t3")}

	merged := Merge(plans, thoughts)

	want := []string{"p1", "t1", "t2", "p2", "t3", "p3"}
	if len(merged) != len(want) {
		t.Fatalf("merged %d items, want %d", len(merged), len(want))
	}
	for i, w := range want {
		if merged[i].Content != w {
			t.Fatalf("position %d: got %q, want %q", i, merged[i].Content, w)
		}
	}
}

func TestMergeIsNonDecreasing(t *testing.T) {
	plans := []model.TimelineItem{item(0, "a"), item(2, "b"), item(2, "c"), item(9, "d")}
	thoughts := []model.TimelineItem{item(1, "e"), item(2, "f"), item(8, "g")}

	merged := Merge(plans, thoughts)
	for i := 1; i < len(merged); i++ {
		if merged[i].Timestamp.Before(merged[i-1].Timestamp) {
			t.Fatalf("timestamps decrease at position %d: %v after %v", i, merged[i].Timestamp, merged[i-1].Timestamp)
		}
	}
}

func TestMergeTiesKeepFirstSequenceFirst(t *testing.T) {
	plans := []model.TimelineItem{item(5, "plan")}
	thoughts := []model.TimelineItem{item(5, "thought")}

	merged := Merge(plans, thoughts)
	if merged[0].Content != "plan" || merged[1].Content != "thought" {
		t.Fatalf("equal timestamps must keep first sequence first, got %q then %q", merged[0].Content, merged[1].Content)
	}
}

func TestMergeEmptyInputs(t *testing.T) {
	if got := Merge(nil, nil); len(got) != 0 {
		t.Fatalf("expected empty merge, got %d items", len(got))
	}

	only := []model.TimelineItem{item(1, "solo")}
	if got := Merge(only, nil); len(got) != 1 || got[0].Content != "solo" {
		t.Fatalf("unexpected merge of single list: %+v", got)
	}
	if got := Merge(nil, only); len(got) != 1 || got[0].Content != "solo" {
		t.Fatalf("unexpected merge of single list: %+v", got)
	}
}

func TestMergeDoesNotModifyInputs(t *testing.T) {
	plans := []model.TimelineItem{item(3, "p")}
	thoughts := []model.TimelineItem{item(1, "t"), item(2, "u")}

	_ = Merge(plans, thoughts)

	if plans[0].Content != "p" || thoughts[0].Content != "t" || thoughts[1].Content != "u" {
		t.Fatalf("inputs were modified: %+v %+v", plans, thoughts)
	}
}
