package mockserver

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage renders the first failed rule of err
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "参数错误"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_without":
		return "缺少参数 " + fe.Field()
	case "min", "max":
		return "参数长度不合法 " + fe.Field()
	default:
		return "参数不合法 " + fe.Field()
	}
}
