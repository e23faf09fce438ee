// Package repository declares the persistence interfaces the domain depends
// on; implementations live under internal/persistence.
package repository

import (
	"context"

	"github.com/morntool/webshell/internal/domain/entity"
)

// WindowStateRepository persists window snapshots for restoration.
type WindowStateRepository interface {
	Save(ctx context.Context, state *entity.WindowState) error
	Get(ctx context.Context, windowID string) (*entity.WindowState, error)
	List(ctx context.Context) ([]*entity.WindowState, error)
	Delete(ctx context.Context, windowID string) error
	DeleteAll(ctx context.Context) error
}

// VisitRepository persists the visited-page history.
type VisitRepository interface {
	RecordVisit(ctx context.Context, url string) error
	Recent(ctx context.Context, limit int) ([]*entity.Visit, error)
	Clear(ctx context.Context) error
}
