package repo

import (
	"context"

	"github.com/joripage/bookfeed/pkg/model"
)

type ITopOfBookEvent interface {
	Create(ctx context.Context, record *model.TopOfBookEvent) (*model.TopOfBookEvent, error)
	BulkCreate(ctx context.Context, records []*model.TopOfBookEvent) ([]*model.TopOfBookEvent, error)
	Latest(ctx context.Context, symbol string) (*model.TopOfBookEvent, error)
}
