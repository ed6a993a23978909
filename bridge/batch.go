package bridge

import "github.com/c360/omprogbridge/record"

// Batch holds the records parsed since the last submission, in input order.
// It is owned by the Session and never shared.
type Batch struct {
	records []record.Record
}

// Append adds rec to the end of the batch.
func (b *Batch) Append(rec record.Record) {
	b.records = append(b.records, rec)
}

// Len returns the number of buffered records.
func (b *Batch) Len() int {
	return len(b.records)
}

// take moves the records out and leaves the batch empty.
func (b *Batch) take() []record.Record {
	records := b.records
	b.records = nil
	return records
}
