package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var (
	userIDPattern      = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{1,128}$`)
	analysisIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{1,256}$`)
	supplementIDRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	fingerprintPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateUserID accepts an empty ID (anonymous submission).
func ValidateUserID(id string) error {
	if id == "" {
		return nil
	}
	if !userIDPattern.MatchString(id) {
		return fmt.Errorf("invalid user ID format (letters, digits, _ . @ - only, max 128 chars)")
	}
	return nil
}

func ValidateAnalysisID(id string) error {
	if !analysisIDPattern.MatchString(id) {
		return fmt.Errorf("invalid analysis ID format")
	}
	return nil
}

func ValidateSupplementID(id string) error {
	if !supplementIDRegexp.MatchString(id) {
		return fmt.Errorf("invalid supplement ID format")
	}
	return nil
}

// ValidateFingerprint expects a lowercase hex sha256.
func ValidateFingerprint(fp string) error {
	if !fingerprintPattern.MatchString(fp) {
		return fmt.Errorf("invalid fingerprint format")
	}
	return nil
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
