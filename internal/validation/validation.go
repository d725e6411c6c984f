// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct проверяет структуру по тегам validate и возвращает ошибку с перечнем
// некорректных полей.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
}

// NormalizeEmail приводит адрес к виду, используемому для дедупликации.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail проверяет адрес электронной почты.
func IsValidEmail(email string) bool {
	return validate.Var(email, "required,email,max=254") == nil
}

// IsValidInquiryID проверяет идентификатор проверки KYC-провайдера.
func IsValidInquiryID(id string) bool {
	if strings.ContainsAny(id, " \t\r\n") {
		return false
	}
	return validate.Var(id, "required,max=128,printascii") == nil
}
