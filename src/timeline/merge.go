// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

// Package timeline merges the plan and thought event streams of a task run
// into one chronological sequence. Downstream consumers rely on log lines
// never being delivered out of timestamp order.
package timeline

import "nimbusworker/src/model"

// Merge combines two timeline slices, each already non-decreasing by
// timestamp, into one non-decreasing slice. Equal timestamps keep their
// relative order with items from a before items from b. Inputs are not
// modified.
func Merge(a, b []model.TimelineItem) []model.TimelineItem {
	if len(a) == 0 {
		return append([]model.TimelineItem(nil), b...)
	}
	if len(b) == 0 {
		return append([]model.TimelineItem(nil), a...)
	}

	merged := make([]model.TimelineItem, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		// <= keeps the merge stable: ties go to the first sequence.
		if !b[j].Timestamp.Before(a[i].Timestamp) {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}
