package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	errors "github.com/frahmantamala/payment-gateway/internal"
)

// rule returns a non-empty message when the value breaks it.
type rule struct {
	check func(value interface{}) string
	code  errors.ErrorCode
}

type FieldValidator struct {
	FieldName string
	Value     interface{}
	rules     []rule
}

// ValidationBuilder collects rules per field and reports every failure at once.
type ValidationBuilder struct {
	fields []*FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := &FieldValidator{FieldName: name, Value: value}
	v.fields = append(v.fields, fv)
	return fv
}

func (fv *FieldValidator) add(code errors.ErrorCode, check func(interface{}) string) *FieldValidator {
	fv.rules = append(fv.rules, rule{check: check, code: code})
	return fv
}

func (fv *FieldValidator) Required() *FieldValidator {
	return fv.add(errors.ErrCodeValidationFailed, func(value interface{}) string {
		empty := false
		switch v := value.(type) {
		case string:
			empty = v == ""
		case *string:
			empty = v == nil || *v == ""
		case int64:
			empty = v == 0
		}
		if empty {
			return fmt.Sprintf("%s is required", fv.FieldName)
		}
		return ""
	})
}

func (fv *FieldValidator) MinInt(min int64, code errors.ErrorCode) *FieldValidator {
	return fv.add(code, func(value interface{}) string {
		if v, ok := value.(int64); ok && v < min {
			return fmt.Sprintf("%s must be at least %d", fv.FieldName, min)
		}
		return ""
	})
}

func (fv *FieldValidator) MinLength(min int) *FieldValidator {
	return fv.add(errors.ErrCodeValidationFailed, func(value interface{}) string {
		if v, ok := value.(string); ok && len(v) < min {
			return fmt.Sprintf("%s must be at least %d characters", fv.FieldName, min)
		}
		return ""
	})
}

func (fv *FieldValidator) MaxLength(max int) *FieldValidator {
	return fv.add(errors.ErrCodeValidationFailed, func(value interface{}) string {
		if v, ok := value.(string); ok && len(v) > max {
			return fmt.Sprintf("%s must not exceed %d characters", fv.FieldName, max)
		}
		return ""
	})
}

func (v *ValidationBuilder) Validate() *errors.AppError {
	var failures []errors.ValidationError
	for _, field := range v.fields {
		for _, r := range field.rules {
			if msg := r.check(field.Value); msg != "" {
				failures = append(failures, errors.ValidationError{
					Field:   field.FieldName,
					Message: msg,
					Code:    string(r.code),
				})
			}
		}
	}
	if len(failures) == 0 {
		return nil
	}

	// the first failure decides the error code clients branch on
	return errors.NewValidationError("Validation failed", errors.ErrorCode(failures[0].Code)).
		WithDetails(errors.ValidationErrors{Errors: failures})
}

const MinOrderAmount int64 = 100

var vpaPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9]+$`)

func ValidateOrderAmount(amount int64) *errors.AppError {
	validator := NewValidator()
	validator.Field("amount", amount).
		MinInt(MinOrderAmount, errors.ErrCodeBadRequest)
	return validator.Validate()
}

func ValidateCurrency(currency string) *errors.AppError {
	validator := NewValidator()
	validator.Field("currency", currency).
		MinLength(3).
		MaxLength(3)
	return validator.Validate()
}

func ValidVPA(vpa string) bool {
	return vpaPattern.MatchString(vpa)
}

// NormalizeCardNumber strips the spaces and dashes customers type between digit groups.
func NormalizeCardNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(number)
}

// ValidLuhn reports whether number is 13-19 digits with a valid Luhn checksum.
func ValidLuhn(number string) bool {
	digits := NormalizeCardNumber(number)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

const (
	NetworkVisa       = "visa"
	NetworkMastercard = "mastercard"
	NetworkAmex       = "amex"
	NetworkRupay      = "rupay"
	NetworkUnknown    = "unknown"
)

func CardNetwork(number string) string {
	digits := NormalizeCardNumber(number)

	switch {
	case strings.HasPrefix(digits, "4"):
		return NetworkVisa
	case len(digits) >= 2 && digits[:2] >= "51" && digits[:2] <= "55":
		return NetworkMastercard
	case strings.HasPrefix(digits, "34"), strings.HasPrefix(digits, "37"):
		return NetworkAmex
	case strings.HasPrefix(digits, "508"),
		strings.HasPrefix(digits, "60"),
		strings.HasPrefix(digits, "65"),
		strings.HasPrefix(digits, "81"),
		strings.HasPrefix(digits, "82"):
		return NetworkRupay
	default:
		return NetworkUnknown
	}
}

func CardLast4(number string) string {
	digits := NormalizeCardNumber(number)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// ValidExpiry accepts a month of 1-12 and a two or four digit year. A card is
// valid through the last day of its expiry month.
func ValidExpiry(month, year string, now time.Time) bool {
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil || m < 1 || m > 12 {
		return false
	}

	year = strings.TrimSpace(year)
	y, err := strconv.Atoi(year)
	if err != nil {
		return false
	}
	switch len(year) {
	case 2:
		y += 2000
	case 4:
	default:
		return false
	}

	if y != now.Year() {
		return y > now.Year()
	}
	return m >= int(now.Month())
}
