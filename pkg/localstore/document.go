package localstore

import (
	"encoding/json"
	"time"
)

// serverTimestampJSON is what ServerTimestamp marshals to. Remotes substitute
// their own clock for it.
const serverTimestampJSON = `{".sv":"timestamp"}`

type serverTimestamp struct{}

func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return []byte(serverTimestampJSON), nil
}

// ServerTimestamp is a field placeholder resolved by the remote on write.
var ServerTimestamp = serverTimestamp{}

// IsServerTimestamp reports whether raw is the encoded placeholder.
func IsServerTimestamp(raw json.RawMessage) bool {
	var probe map[string]string
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return len(probe) == 1 && probe[".sv"] == "timestamp"
}

// Snapshot is the local view of a document at one point in time.
type Snapshot struct {
	Collection       string
	ID               string
	Exists           bool
	HasPendingWrites bool
	Data             json.RawMessage
}

// Decode unmarshals the document body into v.
func (s Snapshot) Decode(v any) error {
	return json.Unmarshal(s.Data, v)
}

// Document is what the replay loop hands to a Remote.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
}

// localDocument is the SQLite row backing the local cache and write queue.
type localDocument struct {
	Collection   string    `gorm:"column:collection;primaryKey"`
	DocID        string    `gorm:"column:doc_id;primaryKey"`
	Data         string    `gorm:"column:data;not null"`
	Pending      bool      `gorm:"column:pending;not null;index"`
	Generation   int64     `gorm:"column:generation;not null"`
	AttemptCount int       `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string   `gorm:"column:last_error"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

func (localDocument) TableName() string { return "local_documents" }

func (d localDocument) snapshot() Snapshot {
	return Snapshot{
		Collection:       d.Collection,
		ID:               d.DocID,
		Exists:           true,
		HasPendingWrites: d.Pending,
		Data:             json.RawMessage(d.Data),
	}
}

type docKey struct {
	collection string
	id         string
}
