package domain

import (
	"strings"
	"time"
)

// Role определяет права пользователя в API.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User — покупатель или администратор магазина.
type User struct {
	ID                string
	FirstName         string
	LastName          string
	Email             string
	PasswordHash      string
	Phone             string
	Address           string
	City              string
	Pincode           string
	Role              Role
	AgreesToMarketing bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DisplayName возвращает имя для чека и писем.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsAdmin сообщает, есть ли у пользователя права администратора.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NormalizeEmail приводит email к виду, в котором он хранится и ищется.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate проверяет обязательные поля пользователя.
func (u *User) Validate() []error {
	var errs []error
	if strings.TrimSpace(u.Email) == "" {
		errs = append(errs, ErrEmailRequired)
	}
	if strings.TrimSpace(u.FirstName) == "" || strings.TrimSpace(u.LastName) == "" {
		errs = append(errs, ErrNameRequired)
	}
	return errs
}
