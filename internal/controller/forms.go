package controller

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// LoginForm is the login screen form.
type LoginForm struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"notblank"`
}

// SignUpForm is the account creation form.
type SignUpForm struct {
	Username string `json:"username" validate:"notblank"`
	Email    string `json:"email" validate:"notblank"`
	Password string `json:"password" validate:"notblank"`
}

// ChatForm creates a chat.
type ChatForm struct {
	Name string `json:"name" validate:"notblank"`
}

// InviteForm invites another account into a chat.
type InviteForm struct {
	ReceiverID int    `json:"receiver_id" validate:"required"`
	ChatID     int    `json:"chat_id" validate:"required"`
	Text       string `json:"text" validate:"notblank"`
}

// ValidationError lists required fields that were left empty. It is
// raised before any network call.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func validateForm(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field())
	}
	return &ValidationError{Fields: fields}
}
