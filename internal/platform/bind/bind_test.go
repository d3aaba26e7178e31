package bind

import (
	"encoding/json"
	"strings"
	"testing"

	perr "kaggleharvest/internal/platform/errors"
)

type record struct {
	ID     string `json:"id" validate:"required,slug"`
	Kernel string `json:"kernel" validate:"omitempty,kernel_ref"`
}

func TestDecode_Success(t *testing.T) {
	got, err := Decode[record](strings.NewReader(`{"id":"titanic","kernel":"alice/eda"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "titanic" || got.Kernel != "alice/eda" {
		t.Fatalf("got %+v", got)
	}
}

func TestDecode_Empty(t *testing.T) {
	_, err := Decode[record](strings.NewReader(""))
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error code, got %v (%v)", perr.CodeOf(err), err)
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode[record](strings.NewReader(`{`))
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error code, got %v (%v)", perr.CodeOf(err), err)
	}
}

func TestDecode_TrailingData(t *testing.T) {
	_, err := DecodeBytes[record]([]byte(`{"id":"a"} {"id":"b"}`))
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error code, got %v (%v)", perr.CodeOf(err), err)
	}
	if !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestDecode_TrailingData_Seam(t *testing.T) {
	orig := jsonMore
	jsonMore = func(*json.Decoder) bool { return true }
	t.Cleanup(func() { jsonMore = orig })

	_, err := DecodeBytes[record]([]byte(`{"id":"a"}`))
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error via seam, got %v", err)
	}
}

func TestDecode_DisallowUnknown(t *testing.T) {
	_, err := DecodeBytes[record]([]byte(`{"id":"a","extra":1}`), Options{DisallowUnknown: true})
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error code, got %v", err)
	}
	if _, err := DecodeBytes[record]([]byte(`{"id":"a","extra":1}`)); err != nil {
		t.Fatalf("unknown fields should pass by default: %v", err)
	}
}

func TestDecode_MaxBytes(t *testing.T) {
	_, err := DecodeBytes[record]([]byte(`{"id":"titanic"}`), Options{MaxBytes: 4})
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected truncated input to fail, got %v", err)
	}
}

func TestDecode_ValidationFailure(t *testing.T) {
	_, err := DecodeBytes[record]([]byte(`{"id":""}`))
	if perr.CodeOf(err) != perr.ErrorCodeValidation {
		t.Fatalf("expected Validation code, got %v (%v)", perr.CodeOf(err), err)
	}
	e, ok := perr.As(err)
	if !ok || e.Field() != "id" {
		t.Fatalf("expected field id, got %+v", e)
	}
}

func TestDecode_NonStructSkipsValidation(t *testing.T) {
	got, err := DecodeBytes[[]string]([]byte(`["a","b"]`))
	if err != nil || len(got) != 2 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestCustomTags(t *testing.T) {
	cases := []struct {
		in   record
		ok   bool
		want string
	}{
		{record{ID: "titanic"}, true, ""},
		{record{ID: "a/b"}, false, "slug"},
		{record{ID: "has space"}, false, "slug"},
		{record{ID: "x", Kernel: "noslash"}, false, "owner/slug"},
		{record{ID: "x", Kernel: "a/b/c"}, false, "owner/slug"},
		{record{ID: "x", Kernel: "/b"}, false, "owner/slug"},
		{record{ID: "x", Kernel: "alice/eda"}, true, ""},
	}
	for _, c := range cases {
		err := Struct(c.in)
		if c.ok && err != nil {
			t.Fatalf("%+v: unexpected error %v", c.in, err)
		}
		if !c.ok {
			if err == nil {
				t.Fatalf("%+v: expected error", c.in)
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Fatalf("%+v: message %q missing %q", c.in, err.Error(), c.want)
			}
		}
	}
}

func TestVar(t *testing.T) {
	if err := Var("alice/eda", "kernel_ref"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := Var("alice", "kernel_ref"); perr.CodeOf(err) != perr.ErrorCodeValidation {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestStruct_InvalidValidation(t *testing.T) {
	// nil pointer is an InvalidValidationError inside validator
	var p *record
	if err := Struct(p); perr.CodeOf(err) != perr.ErrorCodeValidation {
		t.Fatalf("expected Validation code, got %v", err)
	}
}

func TestValidationFieldAndMessage(t *testing.T) {
	if f, m := ValidationFieldAndMessage(nil); f != "" || m != "" {
		t.Fatalf("nil: %q %q", f, m)
	}
	if _, m := ValidationFieldAndMessage(perr.New(perr.ErrorCodeUnknown, "boom")); m != "boom" {
		t.Fatalf("plain error message = %q", m)
	}
	err := Get().Validator.Struct(record{})
	f, m := ValidationFieldAndMessage(err)
	if f != "id" || !strings.Contains(m, "required") {
		t.Fatalf("got %q %q", f, m)
	}
}

func TestRegisterValidation(t *testing.T) {
	if err := RegisterValidation("never", func(FieldLevel) bool { return false }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Var("x", "never"); err == nil {
		t.Fatalf("expected custom tag to fail")
	}
}
