package assignment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/grading"
)

var (
	statusTag  = "status"
	statusText = "invalid status"

	priorityTag  = "priority"
	priorityText = "priority must be one of LOW, MEDIUM or HIGH"

	categoryTag  = "category"
	categoryText = "category must be one of TEST, QUIZ, HOMEWORK or PROJECT"

	letterTag  = "letter"
	letterText = "invalid letter grade"

	requiredWithoutTag  = "required_without"
	requiredWithoutText = "grade_label or grade_value is required"
)

// InitValidators registers the assignment validators. core.InitValidators must run first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	_ = validate.RegisterValidation(priorityTag, func(fl validator.FieldLevel) bool {
		_, ok := ParsePriority(fl.Field().String())
		return ok
	})
	core.RegisterCustomTranslation(validate, translator, priorityTag, priorityText)

	_ = validate.RegisterValidation(categoryTag, func(fl validator.FieldLevel) bool {
		_, ok := grading.ParseCategory(fl.Field().String())
		return ok
	})
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)

	_ = validate.RegisterValidation(letterTag, func(fl validator.FieldLevel) bool {
		return grading.IsLetter(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, letterTag, letterText)

	core.RegisterCustomTranslation(validate, translator, requiredWithoutTag, requiredWithoutText, true)
}
