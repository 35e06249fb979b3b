package middleware

import (
	stderrors "errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/wms-platform/verification-service/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var (
	staffCodeRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)
	planIDRegex    = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)
)

func validateStaffCode(fl validator.FieldLevel) bool {
	return staffCodeRegex.MatchString(fl.Field().String())
}

func validatePlanID(fl validator.FieldLevel) bool {
	return planIDRegex.MatchString(fl.Field().String())
}

func jsonTagName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form", "uri"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return fld.Name
}

func register(v *validator.Validate) {
	_ = v.RegisterValidation("staff_code", validateStaffCode)
	_ = v.RegisterValidation("plan_id", validatePlanID)
	v.RegisterTagNameFunc(jsonTagName)
}

// InitValidator registers the custom tags on a standalone validator and on
// Gin's binding validator
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		register(validate)

		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			register(v)
		}
	})
	return validate
}

// ValidationErrorFormatter formats validation errors into a map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}
	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "staff_code":
		return "must be a staff code (letters, digits, '-' or '_')"
	case "plan_id":
		return "must be a plan id"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

func toAppError(err error) *errors.AppError {
	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) {
		return errors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
	}
	return errors.ErrBadRequest("invalid request: " + err.Error())
}

// BindAndValidate binds the JSON body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		return toAppError(err)
	}
	return nil
}

// BindQuery binds and validates query parameters
func BindQuery(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindQuery(obj); err != nil {
		return toAppError(err)
	}
	return nil
}

// ValidateVar validates a single value against a tag
func ValidateVar(field, value, tag string) *errors.AppError {
	if err := InitValidator().Var(value, tag); err != nil {
		var validationErrors validator.ValidationErrors
		if stderrors.As(err, &validationErrors) && len(validationErrors) > 0 {
			return errors.ErrValidationWithFields("validation failed", map[string]string{
				field: formatValidationError(validationErrors[0]),
			})
		}
		return errors.ErrBadRequest("invalid " + field)
	}
	return nil
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// InputSanitizer sanitizes query parameters. Request bodies are left
// untouched since scan payloads carry control characters.
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		for key, values := range query {
			for i, v := range values {
				values[i] = SanitizeString(v)
			}
			query[key] = values
		}
		c.Request.URL.RawQuery = query.Encode()
		c.Next()
	}
}

// ContentType requires JSON bodies on POST requests
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost && c.Request.ContentLength > 0 {
			if !strings.HasPrefix(c.GetHeader("Content-Type"), "application/json") {
				AbortWithAppError(c, errors.NewAppError("INVALID_CONTENT_TYPE", "Content-Type must be application/json", http.StatusUnsupportedMediaType))
				return
			}
		}
		c.Next()
	}
}
