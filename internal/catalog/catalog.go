package catalog

import "time"

/*
The catalog is a record of what has been exported.
The catalog is a primitive for verifying, inventorying and auditing
data operations.
*/

// Catalog describes one export run of a table.
type Catalog struct {
	RunID               string    `json:"run_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	Source              string    `json:"source"`
	Table               string    `json:"table"`
	NumSourceRecords    int64     `json:"num_source_records"`
	NumRecordsProcessed int64     `json:"num_records_processed"`
	Files               []string  `json:"files"`
	Completed           bool      `json:"completed"`
	Success             bool      `json:"success"`
	Error               string    `json:"error,omitempty"`
}

// Verify reports whether every counted record made it into a file.
func (c *Catalog) Verify() bool {
	return c.Completed && c.NumSourceRecords == c.NumRecordsProcessed
}
