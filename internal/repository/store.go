package repository

import (
	"gorm.io/gorm"
)

// GormStore is a GORM implementation of Store
type GormStore struct {
	db *gorm.DB
}

// NewStore creates a new Store
func NewStore(db *gorm.DB) Store {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepository             { return NewUserRepository(s.db) }
func (s *GormStore) Tasks() TaskRepository             { return NewTaskRepository(s.db) }
func (s *GormStore) Images() ImageRepository           { return NewImageRepository(s.db) }
func (s *GormStore) Annotations() AnnotationRepository { return NewAnnotationRepository(s.db) }
func (s *GormStore) ExportJobs() ExportJobRepository   { return NewExportJobRepository(s.db) }

// Transaction runs fn with a Store bound to one database transaction
func (s *GormStore) Transaction(fn func(tx Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
