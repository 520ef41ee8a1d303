// Package validation holds the input checks shared by the user and note
// handlers. Every function is pure and reports failures through Result.
package validation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	MaxEmailLength    = 254
	MaxTitleLength    = 500
	MaxContentsLength = 50000
	MinPasswordLength = 8

	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100

	PasswordSpecials = "!@#$%^&*"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Result struct {
	IsValid bool
	Errors  []string
}

func (r Result) Join(sep string) string {
	return strings.Join(r.Errors, sep)
}

func result(errs []string) Result {
	return Result{IsValid: len(errs) == 0, Errors: errs}
}

type Pagination struct {
	Result
	Page  int
	Limit int
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

func ValidateEmail(email string) bool {
	return len(email) <= MaxEmailLength && emailRe.MatchString(email)
}

func ValidatePasswordStrength(password string) Result {
	var errs []string
	if utf8.RuneCountInString(password) < MinPasswordLength {
		errs = append(errs, "Password must be at least 8 characters")
	}
	if !strings.ContainsFunc(password, isASCIILower) {
		errs = append(errs, "Password must contain lowercase letters")
	}
	if !strings.ContainsFunc(password, isASCIIUpper) {
		errs = append(errs, "Password must contain uppercase letters")
	}
	if !strings.ContainsFunc(password, isASCIIDigit) {
		errs = append(errs, "Password must contain numbers")
	}
	if !strings.ContainsAny(password, PasswordSpecials) {
		errs = append(errs, "Password must contain special characters (!@#$%^&*)")
	}
	return result(errs)
}

func ValidateNoteInput(title, contents string) Result {
	var errs []string
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		errs = append(errs, "Title is required")
	} else if utf8.RuneCountInString(trimmed) > MaxTitleLength {
		errs = append(errs, "Title must not exceed 500 characters")
	}
	if utf8.RuneCountInString(contents) > MaxContentsLength {
		errs = append(errs, "Note content must not exceed 50,000 characters")
	}
	return result(errs)
}

// ValidatePagination takes the raw query values. Values that are missing or
// not numbers fall back to the defaults; an explicit page below 1 is rejected
// and the limit is clamped into [1, MaxLimit].
func ValidatePagination(page, limit string) Pagination {
	p := Pagination{Page: DefaultPage, Limit: DefaultLimit}
	var errs []string

	if n, ok := parseInt(page); ok {
		if n < 1 {
			errs = append(errs, "Page must be >= 1")
		} else {
			p.Page = n
		}
	}
	if n, ok := parseInt(limit); ok {
		p.Limit = min(max(n, 1), MaxLimit)
	}

	p.Result = result(errs)
	return p
}

// TruncateFilter trims a search or title filter and caps it at MaxTitleLength runes.
func TruncateFilter(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxTitleLength {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:MaxTitleLength]))
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isASCIILower(r rune) bool { return r >= 'a' && r <= 'z' }
func isASCIIUpper(r rune) bool { return r >= 'A' && r <= 'Z' }
func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }
