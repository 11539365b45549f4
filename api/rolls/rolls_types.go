package rolls

import (
	"bytes"
	"encoding/json"
	"time"

	"railstock/api/movements"
	"railstock/models"
)

const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 500
	DetailHistoryLimit = 20
)

// CreateInput is the identity and attributes of a roll being received.
type CreateInput struct {
	EAN          string
	MaterialName string
	Description  *string
	WidthMM      *int
	GrammageGM2  *int
	Color        *string
	Supplier     *string
	BatchNo      *string
	Photo        *string
	ReceivedAt   time.Time
}

// Optional is a patch field: Set is false when the key was absent, and a
// nil Value with Set true means clear.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Patch is a partial attribute update. EAN and status are not patchable.
type Patch struct {
	MaterialName Optional[string] `json:"materialName"`
	Description  Optional[string] `json:"description"`
	WidthMM      Optional[int]    `json:"widthMm"`
	GrammageGM2  Optional[int]    `json:"grammageGm2"`
	Color        Optional[string] `json:"color"`
	Supplier     Optional[string] `json:"supplier"`
	BatchNo      Optional[string] `json:"batchNo"`
	Photo        Optional[string] `json:"photo"`
}

// Filters narrows a roll search. Zero values do not filter.
type Filters struct {
	Query       string
	Status      string
	RailCode    string
	WidthMin    *int
	WidthMax    *int
	GrammageMin *int
	GrammageMax *int
	Color       string
	Supplier    string
	Limit       int
}

// SearchRow is a roll with its current placement.
type SearchRow struct {
	models.Roll
	RailCode    *string    `json:"railCode"`
	RailName    *string    `json:"railName"`
	LastMovedAt *time.Time `json:"lastMovedAt"`
}

// Detail is a roll with its placement and most recent movements.
type Detail struct {
	models.Roll
	Location  *DetailLocation          `json:"location"`
	Movements []movements.HistoryEntry `json:"movements"`
}

type DetailLocation struct {
	RailID      *string   `json:"railId"`
	RailCode    *string   `json:"railCode"`
	RailName    *string   `json:"railName"`
	PlacedAt    time.Time `json:"placedAt"`
	LastMovedAt time.Time `json:"lastMovedAt"`
}
