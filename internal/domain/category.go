package domain

// Category is a user-defined expense category. It is read-only for the
// ingestion pipeline and only used for label matching.
type Category struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Color  string `json:"color"`
	UserID string `json:"userId"`
}

// Tag is a user-defined label that can be attached to many expenses.
type Tag struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	UserID string `json:"userId"`
}
