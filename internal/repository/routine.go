package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/attendify/attendance-server-go/internal/model"
)

type RoutineRepository interface {
	ListAll(ctx context.Context) ([]model.ClassRoutine, error)
	FindByID(ctx context.Context, id string) (*model.ClassRoutine, error)
}

type routineRepo struct {
	db *sqlx.DB
}

func NewRoutineRepository(db *sqlx.DB) RoutineRepository {
	return &routineRepo{db: db}
}

func (r *routineRepo) ListAll(ctx context.Context) ([]model.ClassRoutine, error) {
	routines := []model.ClassRoutine{}
	err := r.db.SelectContext(ctx, &routines, `
		SELECT * FROM class_routines ORDER BY weekday, start_time
	`)
	return routines, err
}

func (r *routineRepo) FindByID(ctx context.Context, id string) (*model.ClassRoutine, error) {
	var routine model.ClassRoutine
	err := r.db.GetContext(ctx, &routine, `
		SELECT * FROM class_routines WHERE id = $1
	`, id)
	return HandleNotFound(&routine, err)
}
