package services

import (
	"strings"

	"places-server/utils/errors"

	"github.com/go-playground/validator/v10"
)

const invalidInputMessage = "Invalid inputs passed, please check your data."

// validate caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	fields := []string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+":"+fe.Tag())
		}
	}
	return errors.Validation(invalidInputMessage, strings.Join(fields, ","))
}
