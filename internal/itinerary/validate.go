package itinerary

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

const defaultCurrency = "EUR"

func validateName(operation, field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", apperr.Validation(operation, "missing_"+field, field+" is required")
	}
	if len([]rune(trimmed)) > maxNameLength {
		return "", apperr.Validation(operation, "invalid_"+field, fmt.Sprintf("%s must be at most %d characters", field, maxNameLength))
	}
	return trimmed, nil
}

func validateText(operation, field, value string, limit int) (string, error) {
	if len([]rune(value)) > limit {
		return "", apperr.Validation(operation, "invalid_"+field, fmt.Sprintf("%s must be at most %d characters", field, limit))
	}
	return value, nil
}

func normalizeCountryCode(operation, value string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(value))
	if len(code) < 2 || len(code) > 10 {
		return "", apperr.Validation(operation, "invalid_country_code", "country_code must be 2 to 10 characters")
	}
	return code, nil
}

func normalizeCurrency(operation, value string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(value))
	if code == "" {
		return defaultCurrency, nil
	}
	if len(code) != 3 {
		return "", apperr.Validation(operation, "invalid_currency", "currency must be a 3-letter code")
	}
	for _, r := range code {
		if !unicode.IsLetter(r) {
			return "", apperr.Validation(operation, "invalid_currency", "currency must be a 3-letter code")
		}
	}
	return code, nil
}

func validateCoordinates(operation string, lng, lat float64) error {
	if lng < -180 || lng > 180 {
		return apperr.Validation(operation, "invalid_lng", "lng must be between -180 and 180")
	}
	if lat < -90 || lat > 90 {
		return apperr.Validation(operation, "invalid_lat", "lat must be between -90 and 90")
	}
	return nil
}

func validateNights(operation string, nights int) error {
	if nights < 1 {
		return apperr.Validation(operation, "invalid_nights", "nights must be at least 1")
	}
	return nil
}

func validateDuration(operation string, minutes *int) error {
	if minutes != nil && *minutes < 0 {
		return apperr.Validation(operation, "invalid_duration", "duration_minutes must not be negative")
	}
	return nil
}

func validateRating(operation string, rating *float64) error {
	if rating != nil && (*rating < 0 || *rating > 5) {
		return apperr.Validation(operation, "invalid_rating", "rating must be between 0 and 5")
	}
	return nil
}

func validateClock(operation string, value *string) (*string, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	parsed := parseClock(value)
	if parsed == nil {
		return nil, apperr.Validation(operation, "invalid_start_time", "start_time must be HH:MM")
	}
	return parsed, nil
}
