package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// validateView checks field constraints and, when a table checker is configured,
// that every base table exists in the schema
func (c *Catalog) validateView(v *View) error {
	if err := c.validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %w", ErrInvalidView, err)
		}

		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msg := fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
			if fe.Param() != "" {
				msg += "=" + fe.Param()
			}

			msgs = append(msgs, msg)
		}

		return fmt.Errorf("%w: %s", ErrInvalidView, strings.Join(msgs, "; "))
	}

	if strings.Contains(v.Name, ":") {
		return fmt.Errorf("%w: view_name must not contain ':'", ErrInvalidView)
	}

	if c.tables != nil {
		for _, t := range v.BaseTables {
			if !c.tables.HasTable(t) {
				return fmt.Errorf("%w: %w: %s", ErrInvalidView, ErrUnknownTable, t)
			}
		}
	}

	for _, dep := range v.DependsOnViews {
		if dep == v.Name {
			return fmt.Errorf("%w: %s depends on itself", ErrDependencyCycle, v.Name)
		}
	}

	return nil
}
