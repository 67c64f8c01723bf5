package models

// Record is a single row in the analytics store. Rows are immutable once
// ingested; the gateway only ever reads them.
type Record struct {
	Name    string `ch:"name" json:"name"`
	Email   string `ch:"email" json:"email"`
	Country string `ch:"country" json:"country"`
}
