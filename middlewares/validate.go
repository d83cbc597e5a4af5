package middlewares

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/gofiber/fiber/v2"

	"crm-backend/services"
	"crm-backend/utils"
)

var jsonNull = []byte("null")

// validatable is implemented by the service input schemas.
type validatable interface {
	Validate() error
}

// BindJSON parses the JSON request body into dst.
// Malformed bodies, JSON type mismatches and explicit nulls become a
// *services.ValidationError so they are answered like any other schema violation.
// When dst is a struct, every field is decoded on its own; if any field fails and
// dst can validate itself, the remaining schema violations are reported too.
func BindJSON(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) == 0 {
		return services.NewValidationError("body", "Request body is required")
	}
	if !strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "expected application/json body")
	}

	decode := c.App().Config().JSONDecoder
	target := reflect.ValueOf(dst)
	if target.Kind() != reflect.Ptr || target.Elem().Kind() != reflect.Struct {
		if err := decode(c.Body(), dst); err != nil {
			return bodyError(err)
		}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := decode(c.Body(), &raw); err != nil {
		return bodyError(err)
	}

	fields := decodeFields(decode, raw, target.Elem())
	if len(fields) == 0 {
		return nil
	}

	if v, ok := dst.(validatable); ok {
		utils.NormalizeDTO(dst)
		var ve *services.ValidationError
		if errors.As(v.Validate(), &ve) {
			for field, msg := range ve.Fields {
				// decode errors win: a failed field is zero-valued here
				if _, seen := fields[field]; !seen {
					fields[field] = msg
				}
			}
		}
	}
	return &services.ValidationError{Fields: fields}
}

// decodeFields unmarshals each known member of raw into its struct field and
// returns one message per field that could not be decoded. Unknown members are dropped.
func decodeFields(decode func([]byte, interface{}) error, raw map[string]json.RawMessage, dst reflect.Value) map[string]string {
	fields := make(map[string]string)
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := jsonName(sf)
		if name == "" {
			continue
		}
		value, ok := raw[name]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(value), jsonNull) {
			fields[name] = "Expected " + typeName(sf.Type)
			continue
		}
		if err := decode(value, dst.Field(i).Addr().Interface()); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				fields[name] = "Expected " + typeName(sf.Type)
			} else {
				fields[name] = "Invalid value"
			}
		}
	}
	return fields
}

func bodyError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return services.NewValidationError(field, "Expected "+typeName(typeErr.Type))
	}
	return services.NewValidationError("body", "Invalid JSON body")
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	if name := strings.SplitN(tag, ",", 2)[0]; name != "" {
		return name
	}
	return sf.Name
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map:
		return "object"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return t.Kind().String()
	}
}
