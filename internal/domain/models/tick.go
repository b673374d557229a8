package models

// Tick is one market-data observation from the stream feed.
type Tick struct {
	Asset     string  `json:"asset"`
	Timestamp int64   `json:"t"` // unix seconds
	Price     float64 `json:"p"`
	Volume    float64 `json:"v"`
}
