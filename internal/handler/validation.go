package handler

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/konnect/internal/model"
)

// emailShape は local@domain.tld 形式のみを確認する。
var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var validate = newValidator()

// maxPasswordBytes はbcryptが扱えるパスワードの上限バイト数。
const maxPasswordBytes = 72

// newValidator はカスタムルールを登録したvalidatorを返す。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "emailshape", func(fl validator.FieldLevel) bool {
		return emailShape.MatchString(fl.Field().String())
	})
	return v
}

// mustRegister はルールを登録し、失敗した場合は起動時にpanicする。
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic("handler: register " + tag + " validation: " + err.Error())
	}
}

// registerRequest はユーザー登録リクエストのボディ。
// maxはusers表の列長（文字数）に合わせる。
type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,max=255,emailshape"`
	Password string `json:"password" validate:"required,min=6"`
}

// loginRequest はパスワードログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// validateRegister は登録リクエストを検証する。
// 複数の違反がある場合は 必須 → メール → 名前の長さ → パスワード長 の順で1件だけ返す。
func validateRegister(req *registerRequest) *model.APIError {
	err := validate.Struct(req)
	if err == nil {
		if len(req.Password) > maxPasswordBytes {
			return model.NewValidationError("Mật khẩu không được quá 72 byte")
		}
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return model.NewValidationError("Dữ liệu không hợp lệ")
	}

	failed := make(map[string]string, len(fieldErrs))
	required := false
	for _, fe := range fieldErrs {
		failed[fe.Field()] = fe.Tag()
		if fe.Tag() == "required" {
			required = true
		}
	}
	switch {
	case required:
		return model.NewValidationError("Vui lòng điền đầy đủ thông tin")
	case failed["Email"] != "":
		return model.NewValidationError("Email không hợp lệ")
	case failed["Name"] != "":
		return model.NewValidationError("Tên không được quá 100 ký tự")
	case failed["Password"] != "":
		return model.NewValidationError("Mật khẩu phải có ít nhất 6 ký tự")
	default:
		return model.NewValidationError("Dữ liệu không hợp lệ")
	}
}

// validateLogin はログインリクエストを検証する。
// 入力不足もログイン失敗と同じ扱いにし、理由を区別しない。
func validateLogin(req *loginRequest) bool {
	return validate.Struct(req) == nil
}
