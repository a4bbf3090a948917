package registry

import "time"

// Function is the registry row spec.md §3 describes. canonical route always
// carries a leading "/".
type Function struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Route          string    `json:"route"`
	Language       string    `json:"language"` // "python" or "javascript"
	TimeoutSeconds int       `json:"timeout_seconds"`
	ImageName      string    `json:"image_name"`
	Code           string    `json:"code"`
	CreatedAt      time.Time `json:"created_at"`
}

// FunctionModel is the go-pg row mapping, mirroring the teacher's
// SessionModel: plain struct + pg tags, no ORM-generated migrations beyond
// CreateTable.
type FunctionModel struct {
	tableName struct{} `pg:"functions"` //nolint:unused

	ID             int64     `pg:"id,pk"`
	Name           string    `pg:"name,unique,notnull"`
	Route          string    `pg:"route,unique,notnull"`
	Language       string    `pg:"language,notnull"`
	TimeoutSeconds int       `pg:"timeout_seconds,notnull"`
	ImageName      string    `pg:"image_name,notnull"`
	Code           string    `pg:"code,notnull"`
	CreatedAt      time.Time `pg:"created_at,notnull,default:now()"`
}

func fromModel(m *FunctionModel) *Function {
	return &Function{
		ID:             m.ID,
		Name:           m.Name,
		Route:          m.Route,
		Language:       m.Language,
		TimeoutSeconds: m.TimeoutSeconds,
		ImageName:      m.ImageName,
		Code:           m.Code,
		CreatedAt:      m.CreatedAt,
	}
}

func toModel(f *Function) *FunctionModel {
	return &FunctionModel{
		ID:             f.ID,
		Name:           f.Name,
		Route:          f.Route,
		Language:       f.Language,
		TimeoutSeconds: f.TimeoutSeconds,
		ImageName:      f.ImageName,
		Code:           f.Code,
		CreatedAt:      f.CreatedAt,
	}
}
