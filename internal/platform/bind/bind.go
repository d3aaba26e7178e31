// Package bind provides JSON decode and validation helpers for catalog files
// and remote payloads
package bind

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"

	perr "kaggleharvest/internal/platform/errors"
	"kaggleharvest/internal/platform/logger"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// FieldLevel aliases validator.FieldLevel
type FieldLevel = validator.FieldLevel

// FieldError aliases validator.FieldError
type FieldError = validator.FieldError

// ValidatorSvc holds a singleton validator and translator
type ValidatorSvc struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	vOnce    sync.Once
	vSvc     *ValidatorSvc
	jsonMore = func(dec *json.Decoder) bool { return dec.More() } // seam
)

// Init initializes the singleton validator with english translations and json tag names
func Init() *ValidatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// prefer json tag names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)

		registerSlug(v, trans)
		registerKernelRef(v, trans)

		vSvc = &ValidatorSvc{Validator: v, Translator: trans}
	})
	return vSvc
}

// Get returns the validator singleton, initializing on first use
func Get() *ValidatorSvc {
	if vSvc == nil {
		return Init()
	}
	return vSvc
}

// RegisterValidation registers a custom tag
func RegisterValidation(tag string, fn validator.Func) error {
	return Get().Validator.RegisterValidation(tag, fn)
}

// Options controls decoding behavior
type Options struct {
	MaxBytes        int64 // 0 means unlimited
	DisallowUnknown bool
}

// Decode reads a single JSON value from r into T and validates it when T is a struct
func Decode[T any](r io.Reader, opts ...Options) (T, error) {
	var zero T
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.MaxBytes > 0 {
		r = io.LimitReader(r, o.MaxBytes)
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	if o.DisallowUnknown {
		dec.DisallowUnknownFields()
	}

	var dst T
	if err := dec.Decode(&dst); err != nil {
		if errors.Is(err, io.EOF) {
			return zero, perr.JSONErrf("empty document")
		}
		return zero, perr.JSONErrf("invalid JSON: %v", err)
	}
	if jsonMore(dec) {
		return zero, perr.JSONErrf("unexpected trailing data")
	}

	if isStruct(dst) {
		if err := Struct(dst); err != nil {
			return zero, err
		}
	}
	return dst, nil
}

// DecodeBytes is Decode over an in-memory document
func DecodeBytes[T any](b []byte, opts ...Options) (T, error) {
	return Decode[T](bytes.NewReader(b), opts...)
}

// Struct validates v and maps failures to a Validation error carrying the field
func Struct(v any) error {
	err := Get().Validator.Struct(v)
	if err == nil {
		return nil
	}
	if inv, ok := err.(*validator.InvalidValidationError); ok {
		logger.Get().Error().Err(inv).Msg("validator internal error")
		return perr.Newf(perr.ErrorCodeValidation, "validation error")
	}
	field, msg := ValidationFieldAndMessage(err)
	return perr.WithField(perr.Newf(perr.ErrorCodeValidation, "%s", msg), field)
}

// Var validates a single value against a tag expression, e.g. Var(id, "kernel_ref")
func Var(v any, tag string) error {
	if err := Get().Validator.Var(v, tag); err != nil {
		_, msg := ValidationFieldAndMessage(err)
		return perr.Newf(perr.ErrorCodeValidation, "%s", msg)
	}
	return nil
}

// ValidationFieldAndMessage returns the first field and translated message
func ValidationFieldAndMessage(err error) (field, message string) {
	if err == nil {
		return "", ""
	}
	if inv, ok := err.(*validator.InvalidValidationError); ok {
		return "", inv.Error()
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			return fe.Field(), fe.Translate(Get().Translator)
		}
	}
	return "", err.Error()
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

// custom tags

// IsSlug reports whether s looks like a platform slug: non-empty, no slash, no whitespace
func IsSlug(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/ \t\r\n")
}

// IsKernelRef reports whether s has the owner/slug shape
func IsKernelRef(s string) bool {
	owner, slug, ok := strings.Cut(s, "/")
	return ok && IsSlug(owner) && IsSlug(slug)
}

func registerSlug(v *validator.Validate, trans ut.Translator) {
	_ = v.RegisterValidation("slug", func(fl FieldLevel) bool {
		return IsSlug(fl.Field().String())
	})
	_ = v.RegisterTranslation("slug", trans,
		func(ut ut.Translator) error {
			return ut.Add("slug", "{0} must be a slug without slashes or spaces", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T("slug", fe.Field())
			return msg
		},
	)
}

func registerKernelRef(v *validator.Validate, trans ut.Translator) {
	_ = v.RegisterValidation("kernel_ref", func(fl FieldLevel) bool {
		return IsKernelRef(fl.Field().String())
	})
	_ = v.RegisterTranslation("kernel_ref", trans,
		func(ut ut.Translator) error {
			return ut.Add("kernel_ref", "{0} must look like owner/slug", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T("kernel_ref", fe.Field())
			return msg
		},
	)
}
