package orderstore

import (
	"context"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Dining table statuses.
const (
	TableAvailable = "available"
	TableOccupied  = "occupied"
	TableClosed    = "closed"
)

// DiningTable is a physical table orders can be linked to through the
// _table_id meta.
type DiningTable struct {
	bun.BaseModel `bun:"table:dining_tables,alias:dt"`

	ID        uuid.UUID `bun:"id,pk,type:varchar(36)" json:"id"`
	Code      string    `bun:"code,notnull,unique" json:"code"`
	Name      string    `bun:"name,notnull" json:"name"`
	Seats     int       `bun:"seats,notnull" json:"seats"`
	Status    string    `bun:"status,notnull" json:"status"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

var _ bun.BeforeAppendModelHook = (*DiningTable)(nil)

// BeforeAppendModel assigns ids and maintains timestamps.
func (t *DiningTable) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		if t.Status == "" {
			t.Status = TableAvailable
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
	case *bun.UpdateQuery:
		t.UpdatedAt = now
	}
	return nil
}

// Matches reports whether term occurs in the table code or name, ignoring case.
func (t *DiningTable) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(t.Code), term) ||
		strings.Contains(strings.ToLower(t.Name), term)
}

// NewTableRepository returns the go-repository-bun repository for dining
// tables. The identifier column is the table code.
func NewTableRepository(db *bun.DB) repository.Repository[*DiningTable] {
	return repository.NewRepository[*DiningTable](db, repository.ModelHandlers[*DiningTable]{
		NewRecord: func() *DiningTable {
			return &DiningTable{}
		},
		GetID: func(t *DiningTable) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *DiningTable, id uuid.UUID) {
			t.ID = id
		},
		GetIdentifier: func() string {
			return "code"
		},
	})
}

// TableLister is the read side of the table repository the index needs.
type TableLister interface {
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]*DiningTable, int, error)
}

// TableIndex answers the first hop of a table search: which table ids match
// a term. It reads the full table list, normally through a cached
// repository, and filters in memory; restaurants have tens of tables.
type TableIndex struct {
	tables TableLister
}

// NewTableIndex wraps a table lister.
func NewTableIndex(tables TableLister) *TableIndex {
	return &TableIndex{tables: tables}
}

// MatchTableIDs returns the ids, as stored in _table_id meta, of tables whose
// code or name contains term.
func (x *TableIndex) MatchTableIDs(ctx context.Context, term string) ([]string, error) {
	tables, _, err := x.tables.List(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, t := range tables {
		if t.Matches(term) {
			ids = append(ids, t.ID.String())
		}
	}
	return ids, nil
}
