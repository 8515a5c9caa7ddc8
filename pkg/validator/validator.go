// Package validator provides struct validation utilities with custom validators.
package validator

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/issue"
	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/tool"
)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	_ = v.RegisterValidation("workflow_id", validateWorkflowID)
	_ = v.RegisterValidation("abs_path", validateAbsPath)
	_ = v.RegisterValidation("validation_stage", validateStage)
	_ = v.RegisterValidation("tool_function", validateToolFunction)
	_ = v.RegisterValidation("check_code", validateCheckCode)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors if validation fails.
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		result = append(result, ValidationError{
			Field:   fieldPath(e.Namespace()),
			Message: formatErrorMessage(e),
		})
	}

	return result
}

// validateWorkflowID validates that a string can name a workflow.
func validateWorkflowID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return ingest.ValidExternalID(value)
}

func validateAbsPath(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return filepath.IsAbs(value)
}

func validateStage(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return policy.Stage(value).IsValid()
}

func validateToolFunction(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	_, err := tool.ParseFunction(value)
	return err == nil
}

func validateCheckCode(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	_, err := issue.ParseCheckCode(value)
	return err == nil
}

// formatErrorMessage converts validation errors to human-readable messages.
func formatErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "workflow_id":
		return "must be 1-128 letters, digits, dots, underscores or hyphens"
	case "abs_path":
		return "must be an absolute path"
	case "validation_stage":
		return fmt.Sprintf("must be one of: %s, %s", policy.StageXSLT, policy.StageFinal)
	case "tool_function":
		return fmt.Sprintf("must be one of: %s", formatToolFunctions())
	case "check_code":
		return "must be a known check code"
	default:
		return fmt.Sprintf("failed on '%s' validation", e.Tag())
	}
}

// jsonFieldName reports fields by their JSON name. Fields without one keep their Go name.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// fieldPath drops the struct name from a namespace, so
// "CheckPayload.nodes[0].source" becomes "nodes[0].source".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func formatToolFunctions() string {
	fns := tool.AllFunctions()
	out := make([]string, len(fns))
	for i, f := range fns {
		out[i] = string(f)
	}
	return strings.Join(out, ", ")
}
