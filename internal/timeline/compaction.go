package timeline

import (
	"bytes"

	"github.com/agentchain/replaycore/internal/events"
)

// coalesce collapses runs of consecutive records sharing (taskPda, type)
// and a byte-identical canonical payload into a {first, last, repeatCount}
// summary, for read-only query responses. Canonical records in the
// underlying store are never altered.
func coalesce(records []events.Record, c Compaction) []CoalescedSpan {
	if !c.CoalesceDuplicateSpans || len(records) == 0 {
		spans := make([]CoalescedSpan, len(records))
		for i, r := range records {
			spans[i] = CoalescedSpan{First: r, Last: r, RepeatCount: 1}
		}
		return spans
	}

	var out []CoalescedSpan
	i := 0
	for i < len(records) {
		j := i + 1
		for j < len(records) &&
			records[j].TaskPda == records[i].TaskPda &&
			records[j].Type == records[i].Type &&
			bytes.Equal(records[j].Payload, records[i].Payload) {
			j++
		}
		out = append(out, CoalescedSpan{
			First:       records[i],
			Last:        records[j-1],
			RepeatCount: j - i,
		})
		i = j
	}
	return out
}
