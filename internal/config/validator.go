package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// App lists are keyed by absolute executable path; a relative path would
	// never match a /proc/<pid>/exe resolution.
	_ = v.RegisterValidation("abs_path", func(fl validator.FieldLevel) bool {
		return filepath.IsAbs(fl.Field().String())
	})

	return v
}

// ValidationError represents a single validation error with context.
type ValidationError struct {
	FieldPath string // Dot-notation field path (e.g. "routing.bypass_table")
	Message   string // Human-readable error message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):\n", len(ve)))
	for _, e := range ve {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", e.FieldPath, e.Message))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ValidateConfig validates the entire configuration and returns all
// validation errors found.
func (c *Config) ValidateConfig() error {
	var validationErrors ValidationErrors

	for _, section := range []struct {
		name  string
		value interface{}
	}{
		{"cgroups", c.Cgroups},
		{"routing", c.Routing},
		{"firewall", c.Firewall},
	} {
		if isNil(section.value) {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: section.name,
				Message:   fmt.Sprintf("configuration must contain '%s' section", section.name),
			})
		}
	}
	if len(validationErrors) > 0 {
		return validationErrors
	}

	if err := validate.Struct(c); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range fieldErrors {
				validationErrors = append(validationErrors, ValidationError{
					FieldPath: strings.TrimPrefix(e.Namespace(), "Config."),
					Message:   validationMessage(e),
				})
			}
		} else {
			return err
		}
	}

	if c.Routing != nil && c.Routing.BypassTable == c.Routing.VPNOnlyTable {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "routing.vpn_only_table",
			Message:   "bypass and vpn-only routing tables must differ",
		})
	}

	if len(validationErrors) > 0 {
		return validationErrors
	}

	return nil
}

func isNil(v interface{}) bool {
	switch s := v.(type) {
	case *CgroupsConfig:
		return s == nil
	case *RoutingConfig:
		return s == nil
	case *FirewallConfig:
		return s == nil
	}
	return v == nil
}

// validationMessage returns a human-readable message for a validation error.
func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "field is required"
	case "min":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "hostname_port":
		return "must be in format 'host:port'"
	case "abs_path":
		return "must be an absolute path"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}
