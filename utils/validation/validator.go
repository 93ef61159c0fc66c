package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	PasswordMinLength = 8
	// bcrypt ignores everything past 72 bytes
	PasswordMaxBytes = 72
)

// Validator validates request bodies. Error field names follow the json
// tags so they line up with what the client sent.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return &Validator{validate: v}
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

func (v *Validator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// shared instance for the standalone helpers below
var standalone = validator.New()

type messageFunc func(e validator.FieldError) string

var messages = map[string]messageFunc{
	"required": func(e validator.FieldError) string { return e.Field() + " is required" },
	"email":    func(e validator.FieldError) string { return "Invalid email format" },
	"oneof":    func(e validator.FieldError) string { return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param()) },
	"gt":       bound("greater than"),
	"gte":      bound("greater than or equal to"),
	"lt":       bound("less than"),
	"lte":      bound("less than or equal to"),
	"min":      length("at least"),
	"max":      length("at most"),
}

func bound(rel string) messageFunc {
	return func(e validator.FieldError) string {
		return fmt.Sprintf("%s must be %s %s", e.Field(), rel, e.Param())
	}
}

func length(rel string) messageFunc {
	return func(e validator.FieldError) string {
		switch e.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("%s must contain %s %s items", e.Field(), rel, e.Param())
		case reflect.String:
			return fmt.Sprintf("%s must be %s %s characters", e.Field(), rel, e.Param())
		}
		return fmt.Sprintf("%s must be %s %s", e.Field(), rel, e.Param())
	}
}

// FormatValidationErrors flattens validator errors into field path ->
// message, e.g. "sections[1].name" -> "name is required". Anything that is
// not a validation error yields an empty map.
func FormatValidationErrors(err error) map[string]string {
	out := make(map[string]string)

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return out
	}

	for _, e := range fieldErrs {
		msg := e.Field() + " is invalid"
		if fn, ok := messages[e.Tag()]; ok {
			msg = fn(e)
		}
		out[fieldPath(e.Namespace())] = msg
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func ValidateEmail(email string) bool {
	return standalone.Var(email, "required,email,max=254") == nil
}

// ValidatePassword reports every rule the password breaks
func ValidatePassword(password string) (bool, []string) {
	var problems []string

	if len(password) < PasswordMinLength {
		problems = append(problems, fmt.Sprintf("Password must be at least %d characters", PasswordMinLength))
	}
	if len(password) > PasswordMaxBytes {
		problems = append(problems, fmt.Sprintf("Password must be at most %d bytes", PasswordMaxBytes))
	}
	if strings.IndexFunc(password, unicode.IsLetter) < 0 {
		problems = append(problems, "Password must contain at least one letter")
	}

	return len(problems) == 0, problems
}

// SanitizeString strips NUL bytes and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}
