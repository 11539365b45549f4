package rails

import (
	"time"

	"railstock/models"
)

// RailView is a rail with the number of rolls currently on it.
type RailView struct {
	models.Rail
	RollCount int               `json:"rollCount"`
	Warehouse *models.Warehouse `json:"warehouse,omitempty"`
}

// ListFilters narrows the rail list. Empty values do not filter.
type ListFilters struct {
	WarehouseID string
	Zone        string
}

// InventoryRoll is an active roll on a rail with its placement times.
type InventoryRoll struct {
	models.Roll
	PlacedAt    time.Time `json:"placedAt"`
	LastMovedAt time.Time `json:"lastMovedAt"`
}

type Inventory struct {
	RailCode string          `json:"railCode"`
	RailName string          `json:"railName"`
	Rolls    []InventoryRoll `json:"rolls"`
}

// GridInput lays out rows x cols rails named by position.
type GridInput struct {
	WarehouseID string
	Rows        int
	Cols        int
	Zones       []string
}

type RailLabelData struct {
	Code string
	Name string
	Zone string
}
