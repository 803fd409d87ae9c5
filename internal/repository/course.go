package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/attendify/attendance-server-go/internal/model"
)

type CourseRepository interface {
	FindByID(ctx context.Context, id string) (*model.Course, error)
	FindByCode(ctx context.Context, code string) (*model.Course, error)
	Create(ctx context.Context, params model.CreateCourseParams) (*model.Course, error)
}

type courseRepo struct {
	db *sqlx.DB
}

func NewCourseRepository(db *sqlx.DB) CourseRepository {
	return &courseRepo{db: db}
}

func (r *courseRepo) FindByID(ctx context.Context, id string) (*model.Course, error) {
	var course model.Course
	err := r.db.GetContext(ctx, &course, `
		SELECT * FROM courses WHERE id = $1
	`, id)
	return HandleNotFound(&course, err)
}

func (r *courseRepo) FindByCode(ctx context.Context, code string) (*model.Course, error) {
	var course model.Course
	err := r.db.GetContext(ctx, &course, `
		SELECT * FROM courses WHERE code = $1
	`, code)
	return HandleNotFound(&course, err)
}

func (r *courseRepo) Create(ctx context.Context, params model.CreateCourseParams) (*model.Course, error) {
	var course model.Course
	err := r.db.GetContext(ctx, &course, `
		INSERT INTO courses (id, code, name, teacher_id)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, uuid.NewString(), params.Code, params.Name, params.TeacherID)
	if err != nil {
		return nil, err
	}
	return &course, nil
}
