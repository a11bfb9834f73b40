package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map suitable for JSON responses and form rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

// ValidPhoneNumber builds a rule that parses the value as a phone number
// for the given default region. Empty values pass, pair with Required
// when the field is mandatory.
func ValidPhoneNumber(defaultRegion string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}

		parsed, err := phonenumbers.Parse(s, defaultRegion)
		if err != nil {
			return errors.New("must be a valid phone number")
		}

		if !phonenumbers.IsValidNumber(parsed) {
			return errors.New("must be a valid phone number")
		}

		return nil
	}
}

// NormalizePhoneNumber formats a valid phone number as E.164, returning
// the input untouched when it cannot be parsed.
func NormalizePhoneNumber(raw, defaultRegion string) string {
	parsed, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return raw
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}
