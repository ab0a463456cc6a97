// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	"embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var commonPasswords map[string]struct{}

func init() {
	commonPasswords = make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		password := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if password != "" {
			commonPasswords[password] = struct{}{}
		}
	}
}

// PasswordValidator validates passwords against various criteria
type PasswordValidator struct {
	MinLength            int
	MaxLength            int
	RequireLetter        bool
	RequireDigit         bool
	CheckCommonPasswords bool
	CheckUserSimilarity  bool
}

// DefaultPasswordValidator returns the rules applied at registration.
func DefaultPasswordValidator() *PasswordValidator {
	return &PasswordValidator{
		MinLength:            8,
		MaxLength:            72, // bcrypt ignores everything after 72 bytes
		RequireLetter:        true,
		RequireDigit:         true,
		CheckCommonPasswords: true,
		CheckUserSimilarity:  true,
	}
}

// PasswordProblem is a single failed rule.
type PasswordProblem struct {
	Code    string
	Message string
}

// Validate checks a password and returns every rule it breaks.
func (v *PasswordValidator) Validate(password string, userAttributes ...string) []PasswordProblem {
	var problems []PasswordProblem

	if utf8.RuneCountInString(password) < v.MinLength {
		problems = append(problems, PasswordProblem{
			Code:    "min_length",
			Message: fmt.Sprintf("Password must be at least %d characters long.", v.MinLength),
		})
	}

	if v.MaxLength > 0 && len(password) > v.MaxLength {
		problems = append(problems, PasswordProblem{
			Code:    "max_length",
			Message: fmt.Sprintf("Password must be at most %d bytes long.", v.MaxLength),
		})
		// The remaining rules scale with the password length.
		return problems
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if v.RequireLetter && !hasLetter {
		problems = append(problems, PasswordProblem{
			Code:    "no_letter",
			Message: "Password must contain at least one letter.",
		})
	}

	if v.RequireDigit && !hasDigit {
		problems = append(problems, PasswordProblem{
			Code:    "no_digit",
			Message: "Password must contain at least one digit.",
		})
	}

	if v.CheckCommonPasswords && isCommonPassword(password) {
		problems = append(problems, PasswordProblem{
			Code:    "common_password",
			Message: "This password is too common. Please choose a more secure password.",
		})
	}

	if v.CheckUserSimilarity && isSimilarToUserAttributes(password, userAttributes) {
		problems = append(problems, PasswordProblem{
			Code:    "too_similar",
			Message: "Password is too similar to your personal information.",
		})
	}

	return problems
}

func isCommonPassword(password string) bool {
	_, exists := commonPasswords[strings.ToLower(password)]
	return exists
}

func isSimilarToUserAttributes(password string, attributes []string) bool {
	passwordLower := strings.ToLower(password)

	for _, attr := range attributes {
		if len(attr) < 3 {
			continue
		}
		attrLower := strings.ToLower(attr)

		if strings.Contains(passwordLower, attrLower) || strings.Contains(attrLower, passwordLower) {
			return true
		}

		if similarity(passwordLower, attrLower) > 0.7 {
			return true
		}
	}

	return false
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	lcs := longestCommonSubsequence(a, b)
	maxLen := max(len(a), len(b))

	return float64(lcs) / float64(maxLen)
}

func longestCommonSubsequence(a, b string) int {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	return dp[m][n]
}
