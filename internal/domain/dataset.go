package domain

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

const ColumnTypeString = "string"

// Schema maps column name to declared type. Every column is currently "string".
type Schema map[string]string

func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type Dataset struct {
	ID          string    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID      string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Name        string    `gorm:"not null" json:"name"`
	Schema      Schema    `gorm:"column:data_schema;type:jsonb;not null;serializer:json" json:"schema"`
	Columns     []string  `gorm:"column:columns;type:jsonb;not null;serializer:json" json:"columns"`
	RowCount    int       `gorm:"not null;default:0" json:"row_count"`
	ColumnCount int       `gorm:"not null;default:0" json:"column_count"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Records []Record `gorm:"foreignKey:DatasetID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Dataset) TableName() string { return "datasets" }

// OrderedColumns returns the upload header order, falling back to sorted
// schema keys for datasets stored without one.
func (d *Dataset) OrderedColumns() []string {
	if len(d.Columns) == len(d.Schema) && len(d.Columns) > 0 {
		return d.Columns
	}
	return d.Schema.Keys()
}

type Record struct {
	ID        string            `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DatasetID string            `gorm:"type:uuid;not null;index" json:"dataset_id"`
	Data      datatypes.JSONMap `gorm:"type:jsonb;not null;index:idx_records_data_gin,type:gin" json:"data"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Record) TableName() string { return "records" }

// Merge shallow-merges patch over the current data.
func (r *Record) Merge(patch map[string]interface{}) {
	merged := make(datatypes.JSONMap, len(r.Data)+len(patch))
	for k, v := range r.Data {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	r.Data = merged
}
