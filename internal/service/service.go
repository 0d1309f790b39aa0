package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/AdamBeresnev/quiniela/internal/apperr"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateInput runs struct tag validation and reports failures as a
// Validation error naming the offending fields.
func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return apperr.Validation("invalid fields: %s", strings.Join(fields, ", "))
	}
	return apperr.Wrap(apperr.KindValidation, err, "invalid input")
}

// lookup turns sql.ErrNoRows into a NotFound error for the named resource.
func lookup(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, err, what+" not found")
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
