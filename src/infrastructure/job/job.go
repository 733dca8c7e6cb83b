package job

import (
	"time"
)

// TouchTopic carries cache usage updates
const TouchTopic = "query_cache.touched"

// TouchMessage records one use of a cached query embedding
type TouchMessage struct {
	QueryHash string    `json:"query_hash"`
	UsedAt    time.Time `json:"used_at"`
}
