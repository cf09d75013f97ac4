package types

import "time"

// Exchange is one completed question/answer pair. The orchestrator keeps a
// bounded history of exchanges across turns; handlers receive it read-only.
type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Category Category  `json:"category"`
	At       time.Time `json:"at"`
}
