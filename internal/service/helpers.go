package service

import "github.com/lumenlms/lms-api/internal/repository"

func isUniqueViolation(err error) bool {
	return repository.IsUniqueViolation(err)
}
