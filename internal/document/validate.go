package document

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
)

var (
	attrKeyRegex  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)
	roleNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	// Attribute keys the markup codec stores as node fields.
	reservedAttrKeys = map[string]bool{"id": true, "name": true, "references": true}
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		mustRegister(v, "nodeid", func(fl validator.FieldLevel) bool {
			return nodeid.Valid(fl.Field().String())
		})
		mustRegister(v, "typetag", func(fl validator.FieldLevel) bool {
			return nodeid.ValidTag(fl.Field().String())
		})
		mustRegister(v, "attrkey", func(fl validator.FieldLevel) bool {
			k := fl.Field().String()
			return attrKeyRegex.MatchString(k) && !reservedAttrKeys[k]
		})
		mustRegister(v, "rolename", func(fl validator.FieldLevel) bool {
			return roleNameRegex.MatchString(fl.Field().String())
		})
		v.RegisterStructValidation(protoNodeStructLevel, ProtoNode{})
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("document: register %q validation: %v", tag, err))
	}
}

// protoNodeStructLevel checks that a well-formed ID carries the node's type tag.
func protoNodeStructLevel(sl validator.StructLevel) {
	p := sl.Current().Interface().(ProtoNode)
	tag, _, err := nodeid.Parse(p.ID)
	if err != nil || p.TypeTag == "" {
		return // reported by the field tags
	}
	if tag != p.TypeTag {
		sl.ReportError(p.ID, "id", "ID", "tagmatch", p.TypeTag)
	}
}

// Validate checks the shape of a proto-node: a valid type tag, an ID that
// parses and carries that tag, well-formed attribute keys, role names and
// reference targets.
func Validate(p ProtoNode) error {
	if err := getValidator().Struct(p); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "nodeid":
		return fmt.Sprintf("%s: %q is not a valid node id", field, e.Value())
	case "typetag":
		return fmt.Sprintf("%s: %q is not a valid type tag", field, e.Value())
	case "attrkey":
		return fmt.Sprintf("%s: %q is not a usable attribute key", field, e.Value())
	case "rolename":
		return fmt.Sprintf("%s: %q is not a valid role name", field, e.Value())
	case "tagmatch":
		return fmt.Sprintf("%s: %q does not carry type tag %q", field, e.Value(), e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
