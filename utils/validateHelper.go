package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs struct-tag validation and reports failures as plain
// messages. Validation problems are data, not exceptions: callers surface
// them to the user, they are never thrown.
func ValidateStruct(obj any) []string {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		var sb strings.Builder
		sb.WriteString(fe.Field())
		switch fe.Tag() {
		case "required":
			sb.WriteString(" is required")
		case "gt":
			sb.WriteString(" must be greater than " + fe.Param())
		case "gte":
			sb.WriteString(" must be at least " + fe.Param())
		case "oneof":
			sb.WriteString(" must be one of: " + fe.Param())
		default:
			sb.WriteString(" is invalid (" + fe.Tag() + ")")
		}
		msgs = append(msgs, sb.String())
	}
	return msgs
}
