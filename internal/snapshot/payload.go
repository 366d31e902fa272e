package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/boxtrainer/pkg/models"
)

// Version is the only payload version the loader accepts.
const Version = 2

// Payload is the persisted form of one scope's boxes.
type Payload struct {
	V            int               `json:"v"`
	UpdatedAt    int64             `json:"updatedAt"`
	ScopeID      string            `json:"scopeId"`
	CourseID     int64             `json:"courseId,omitempty"`
	SourceLangID int64             `json:"sourceLangId"`
	TargetLangID int64             `json:"targetLangId"`
	Level        string            `json:"level"`
	BatchIndex   int               `json:"batchIndex"`
	Boxes        models.BoxesState `json:"boxes"`
	UsedItemIDs  []int64           `json:"usedItemIds"`
}

// Content is the part of a payload owned by the session.
type Content struct {
	BatchIndex  int
	Boxes       models.BoxesState
	UsedItemIDs []int64
}

// NewPayload stamps content with the scope and the save time.
func NewPayload(scope models.PairingContext, c Content, at time.Time) Payload {
	used := c.UsedItemIDs
	if used == nil {
		used = []int64{}
	}
	return Payload{
		V:            Version,
		UpdatedAt:    at.UnixMilli(),
		ScopeID:      scope.ScopeID(),
		CourseID:     scope.CourseID,
		SourceLangID: scope.SourceLangID,
		TargetLangID: scope.TargetLangID,
		Level:        scope.Level,
		BatchIndex:   c.BatchIndex,
		Boxes:        c.Boxes.Clone(),
		UsedItemIDs:  used,
	}
}

// Content returns the session part of the payload.
func (p Payload) Content() Content {
	return Content{BatchIndex: p.BatchIndex, Boxes: p.Boxes.Clone(), UsedItemIDs: p.UsedItemIDs}
}

// Encode marshals the payload.
func Encode(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses data. Malformed payloads and any version other than the
// current one are reported as ErrNotFound.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if p.V != Version {
		return Payload{}, fmt.Errorf("%w: unsupported version %d", ErrNotFound, p.V)
	}
	p.Boxes = p.Boxes.Clone()
	if p.UsedItemIDs == nil {
		p.UsedItemIDs = []int64{}
	}
	return p, nil
}
