package suppliers

import (
	"fmt"
	"net/mail"
	"strings"
)

func (s *Service) validate(sup Supplier) error {
	if strings.TrimSpace(sup.Code) == "" {
		return fmt.Errorf("%w: supplier code is required", ErrInvalidInput)
	}
	if strings.TrimSpace(sup.Name) == "" {
		return fmt.Errorf("%w: supplier name is required", ErrInvalidInput)
	}
	if sup.Email != "" {
		if _, err := mail.ParseAddress(sup.Email); err != nil {
			return fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
	}
	return nil
}

func normalise(sup Supplier) Supplier {
	sup.Code = strings.ToUpper(strings.TrimSpace(sup.Code))
	sup.Name = strings.TrimSpace(sup.Name)
	sup.ContactPerson = strings.TrimSpace(sup.ContactPerson)
	sup.Email = strings.TrimSpace(sup.Email)
	sup.Phone = strings.TrimSpace(sup.Phone)
	return sup
}
