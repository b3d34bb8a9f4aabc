package query

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// request is the validated form of a query.
type request struct {
	Platform  string   `validate:"required,max=32"`
	Genre     string   `validate:"omitempty,max=64"`
	MinRating *float64 `validate:"omitempty,gte=0,lte=5"`
	MaxRating *float64 `validate:"omitempty,gte=0,lte=5"`
	Year      int      `validate:"omitempty,min=1870,max=2100"`
	Limit     int      `validate:"min=1,max=500"`
	Offset    int      `validate:"min=0,max=1000000"`
}

func validateRequest(req *request) error {
	err := getValidator().Struct(req)
	if err == nil {
		if req.MinRating != nil && req.MaxRating != nil && *req.MinRating > *req.MaxRating {
			return errors.New("min_rating must not exceed max_rating")
		}
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, translateError(fe))
	}
	return errors.New(strings.Join(messages, "; "))
}

var fieldNames = map[string]string{
	"Platform":  "platform",
	"Genre":     "genre",
	"MinRating": "min_rating",
	"MaxRating": "max_rating",
	"Year":      "year",
	"Limit":     "limit",
	"Offset":    "offset",
}

func translateError(fe validator.FieldError) string {
	field := fieldNames[fe.Field()]
	if field == "" {
		field = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
