package tabular

import "strings"

// DefaultBatchSize is the maximum number of data rows per extraction call.
// Large enough to amortize call overhead, small enough that the model's
// JSON output does not get truncated.
const DefaultBatchSize = 40

// Batch is one size-bounded slice of a table, rendered on demand.
type Batch struct {
	// Index is the zero-based position of the batch within the run.
	Index int
	// Header is the table's first row, repeated for every batch so each
	// extraction call is self-describing.
	Header []string
	// Rows are the data rows of this batch, at most the iterator's batch size.
	Rows [][]string
}

// Render produces the compact text block sent to the extraction service:
// stable column order, one pipe-delimited line per row, no padding.
func (b Batch) Render() string {
	var sb strings.Builder
	if len(b.Header) > 0 {
		sb.WriteString(joinCells(b.Header))
		sb.WriteByte('\n')
	}
	for _, row := range b.Rows {
		sb.WriteString(joinCells(row))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func joinCells(cells []string) string {
	trimmed := make([]string, len(cells))
	for i, c := range cells {
		trimmed[i] = strings.TrimSpace(c)
	}
	return strings.Join(trimmed, " | ")
}

// Iterator yields the batches of one table in order. It is finite and
// non-restartable; a table is consumed exactly once per ingestion run.
type Iterator struct {
	header    []string
	rows      [][]string
	batchSize int
	next      int
	index     int
}

// NewIterator splits the table into batches of at most batchSize data rows.
// The first row is always treated as the header; a header-only table yields
// no batches. A batchSize below 1 falls back to DefaultBatchSize.
func NewIterator(rows [][]string, batchSize int) *Iterator {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	it := &Iterator{batchSize: batchSize}
	if len(rows) > 0 {
		it.header = rows[0]
		it.rows = rows[1:]
	}
	return it
}

// Len returns the total number of batches the iterator will yield,
// ceil(dataRows / batchSize).
func (it *Iterator) Len() int {
	if len(it.rows) == 0 {
		return 0
	}
	return (len(it.rows) + it.batchSize - 1) / it.batchSize
}

// Next returns the next batch, or ok=false when the table is exhausted.
func (it *Iterator) Next() (Batch, bool) {
	if it.next >= len(it.rows) {
		return Batch{}, false
	}
	end := it.next + it.batchSize
	if end > len(it.rows) {
		end = len(it.rows)
	}
	b := Batch{
		Index:  it.index,
		Header: it.header,
		Rows:   it.rows[it.next:end],
	}
	it.next = end
	it.index++
	return b, true
}
