package pricing

// rateTable is the shape of the embedded rate file.
type rateTable struct {
	Provider        string            `json:"provider"`
	Currency        string            `json:"currency"`
	Version         string            `json:"version"`
	PublicationDate string            `json:"publicationDate"`
	Unit            string            `json:"unit"`
	Rates           map[string]string `json:"rates"` // instance type -> hourly rate
}

// pricingMetadata holds rate-table metadata for diagnostics.
type pricingMetadata struct {
	Version         string
	PublicationDate string
}
