// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

const cardNumberLength = 8

// IsValidCardNumber проверяет формат номера банковской карты: ровно восемь
// цифр. Контрольные суммы и принадлежность эмитенту не проверяются.
func IsValidCardNumber(number string) bool {
	if len(number) != cardNumberLength {
		return false
	}

	for _, ch := range number {
		if !unicode.IsDigit(ch) {
			return false
		}
	}

	return true
}
