// Package validation содержит проверки пользовательского ввода.
package validation

import "strings"

// IsValidTelegramUsername проверяет имя пользователя Telegram: 5–32 символа,
// латиница, цифры и подчёркивание, ведущий @ допускается и отбрасывается.
func IsValidTelegramUsername(username string) bool {
	username = strings.TrimPrefix(username, "@")

	if len(username) < 5 || len(username) > 32 {
		return false
	}

	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}

	return true
}

// NormalizeTelegramUsername приводит имя пользователя к виду без @ и пробелов.
func NormalizeTelegramUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// IsValidPhone проверяет телефон: от 7 до 15 цифр, допускается ведущий +
// и разделители из пробелов, скобок и дефисов.
func IsValidPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false
	}

	digits := 0
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '(' || r == ')' || r == '-':
		default:
			return false
		}
	}

	return digits >= 7 && digits <= 15
}
