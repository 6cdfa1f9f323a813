package db

import (
	"fmt"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testSeq atomic.Int64

// NewTest opens an isolated in-memory database for tests.
func NewTest() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:gatehouse_test_%d?mode=memory&cache=shared", testSeq.Add(1))
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
}
