package repo

import (
	"gorm.io/gorm"
)

type IRepo interface {
	TopOfBookEvent() ITopOfBookEvent
}

type Repo struct {
	bookDB *gorm.DB
}

func NewRepo(bookDB *gorm.DB) IRepo {
	return &Repo{
		bookDB: bookDB,
	}
}

func (r *Repo) TopOfBookEvent() ITopOfBookEvent {
	return NewTopOfBookEventSQLRepo(r.bookDB)
}
