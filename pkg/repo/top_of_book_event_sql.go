package repo

import (
	"context"

	"github.com/joripage/bookfeed/pkg/model"
	"gorm.io/gorm"
)

type TopOfBookEventSQLRepo struct {
	db *gorm.DB
}

func NewTopOfBookEventSQLRepo(db *gorm.DB) *TopOfBookEventSQLRepo {
	return &TopOfBookEventSQLRepo{
		db: db,
	}
}

func (r *TopOfBookEventSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *TopOfBookEventSQLRepo) Create(ctx context.Context, record *model.TopOfBookEvent) (*model.TopOfBookEvent, error) {
	return record, r.dbWithContext(ctx).Create(record).Error
}

func (r *TopOfBookEventSQLRepo) BulkCreate(ctx context.Context, records []*model.TopOfBookEvent) ([]*model.TopOfBookEvent, error) {
	return records, r.dbWithContext(ctx).Create(records).Error
}

// Latest returns the most recent event stored for symbol.
func (r *TopOfBookEventSQLRepo) Latest(ctx context.Context, symbol string) (*model.TopOfBookEvent, error) {
	var record model.TopOfBookEvent
	err := r.dbWithContext(ctx).
		Where("symbol = ?", symbol).
		Order("id DESC").
		Take(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}
