package catalog

// Entry is one supplement the service is allowed to recommend.
type Entry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Price       *float64 `json:"price,omitempty"`
	InStock     bool     `json:"in_stock"`
}
