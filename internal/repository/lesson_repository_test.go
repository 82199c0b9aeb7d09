package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlms/lms-api/internal/models"
)

func TestLessonResolveOwnership(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	rows := sqlmock.NewRows([]string{"instructor_id", "course_id"}).
		AddRow("instructor-1", "course-1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT c.instructor_id, c.id AS course_id")).
		WithArgs("lesson-1").
		WillReturnRows(rows)

	own, err := repo.ResolveOwnership(context.Background(), "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, "instructor-1", own.InstructorID)
	assert.Equal(t, "course-1", own.CourseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonResolveOwnershipBrokenChain(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT c.instructor_id, c.id AS course_id")).
		WithArgs("orphan").
		WillReturnError(sql.ErrNoRows)

	own, err := repo.ResolveOwnership(context.Background(), "orphan")
	assert.Nil(t, own)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectExec("INSERT INTO lessons").WillReturnResult(sqlmock.NewResult(1, 1))

	lesson := &models.Lesson{ModuleID: "m1", Title: "Intro", ContentType: models.ContentVideo}
	err := repo.Create(context.Background(), lesson)
	require.NoError(t, err)
	assert.NotEmpty(t, lesson.ID)
	assert.False(t, lesson.CreatedAt.IsZero())
	assert.WithinDuration(t, time.Now(), lesson.CreatedAt, time.Minute)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lessons WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
