package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Roll statuses.
const (
	RollStatusActive  = "active"
	RollStatusRemoved = "removed"
)

// User roles.
const (
	RoleWorker = "worker"
	RoleAdmin  = "admin"
)

// Warehouse owns a set of rails.
type Warehouse struct {
	bun.BaseModel `bun:"table:warehouses,alias:w"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Zones     []string  `bun:"zones,notnull" json:"zones"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// User is a warehouse worker identified by the device they registered from.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	DeviceID  *string   `bun:"device_id,unique" json:"deviceId"`
	Role      string    `bun:"role,notnull" json:"role"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
}

// Rail is a fixed storage slot on the warehouse grid.
type Rail struct {
	bun.BaseModel `bun:"table:rails,alias:ra"`

	ID          string    `bun:"id,pk" json:"id"`
	Code        string    `bun:"code,notnull,unique" json:"code"`
	Name        string    `bun:"name,notnull" json:"name"`
	WarehouseID string    `bun:"warehouse_id,notnull" json:"warehouseId"`
	Zone        *string   `bun:"zone" json:"zone"`
	RowIndex    int       `bun:"row_index,notnull" json:"rowIndex"`
	ColIndex    int       `bun:"col_index,notnull" json:"colIndex"`
	PosIndex    int       `bun:"pos_index,notnull" json:"posIndex"`
	IsActive    bool      `bun:"is_active,notnull" json:"isActive"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// Roll is a physical roll of material. EAN is its durable business key.
type Roll struct {
	bun.BaseModel `bun:"table:rolls,alias:ro"`

	ID           string    `bun:"id,pk" json:"id"`
	EAN          string    `bun:"ean,notnull,unique" json:"ean"`
	MaterialName string    `bun:"material_name,notnull" json:"materialName"`
	Description  *string   `bun:"description" json:"description"`
	WidthMM      *int      `bun:"width_mm" json:"widthMm"`
	GrammageGM2  *int      `bun:"grammage_gm2" json:"grammageGm2"`
	Color        *string   `bun:"color" json:"color"`
	Supplier     *string   `bun:"supplier" json:"supplier"`
	BatchNo      *string   `bun:"batch_no" json:"batchNo"`
	Photo        *string   `bun:"photo" json:"photo"`
	Status       string    `bun:"status,notnull" json:"status"`
	ReceivedAt   time.Time `bun:"received_at,notnull" json:"receivedAt"`
	UpdatedAt    time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Removed reports whether the roll has left the warehouse.
func (r Roll) Removed() bool {
	return r.Status == RollStatusRemoved
}

// Location is the single current-placement row of a roll. RailID is nil
// once the roll has been removed.
type Location struct {
	bun.BaseModel `bun:"table:locations,alias:l"`

	RollID      string    `bun:"roll_id,pk" json:"rollId"`
	RailID      *string   `bun:"rail_id" json:"railId"`
	PlacedAt    time.Time `bun:"placed_at,notnull" json:"placedAt"`
	LastMovedAt time.Time `bun:"last_moved_at,notnull" json:"lastMovedAt"`
}

// AuditLog captures before/after state of changes that are not movements.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID         int64     `bun:"id,pk,autoincrement"`
	UserID     *string   `bun:"user_id"`
	Action     string    `bun:"action,notnull"`
	EntityType string    `bun:"entity_type,notnull"`
	EntityID   string    `bun:"entity_id,notnull"`
	BeforeJSON string    `bun:"before_json"`
	AfterJSON  string    `bun:"after_json"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ExportRun records one download of an export feed.
type ExportRun struct {
	bun.BaseModel `bun:"table:export_runs,alias:er"`

	ID         int64     `bun:"id,pk,autoincrement"`
	ExportType string    `bun:"export_type,notnull"`
	RowCount   int       `bun:"row_count,notnull"`
	DeviceID   *string   `bun:"device_id"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
