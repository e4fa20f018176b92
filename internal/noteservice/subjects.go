package noteservice

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

// ListSubjects returns all subjects ordered by name.
func (s *Service) ListSubjects(_ context.Context) ([]models.Subject, error) {
	return s.db.ListSubjects()
}

// SaveSubject creates a subject or replaces its schema. Base subjects are
// never modified: the stored one is returned with created false.
func (s *Service) SaveSubject(_ context.Context, sub models.Subject) (*models.Subject, bool, error) {
	sub.Name = strings.TrimSpace(sub.Name)
	if err := validation.Validate(sub.Name, validation.Required.Error("name required"), validation.Length(1, 64)); err != nil {
		return nil, false, fmt.Errorf("%w: %s", apperr.ErrInvalid, err.Error())
	}

	if models.IsBaseSubject(sub.Name) {
		stored, err := s.db.GetSubject(sub.Name)
		if err != nil {
			return nil, false, err
		}
		return stored, false, nil
	}

	if sub.Schema.Fields == nil {
		sub.Schema.Fields = []models.SubjectField{}
	}
	sub.CreatedAt = s.now().UTC()
	if err := s.db.UpsertSubject(sub); err != nil {
		return nil, false, err
	}
	stored, err := s.db.GetSubject(sub.Name)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// DeleteSubject removes a user-defined subject that no note uses. Deleting a
// missing subject is not an error.
func (s *Service) DeleteSubject(_ context.Context, name string) error {
	if models.IsBaseSubject(name) {
		return apperr.ErrBaseSubject
	}
	count, err := s.db.CountBySubject(name)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w (%d)", apperr.ErrSubjectInUse, count)
	}
	return s.db.DeleteSubject(name)
}
