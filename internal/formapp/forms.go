package formapp

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/phillip-england/toolform/internal/intake"
)

type lookupForm struct {
	EmployeeNumber string `validate:"max=64"`
}

type submitForm struct {
	Site       string          `validate:"required,site"`
	Selections []selectionForm `validate:"dive"`
}

type selectionForm struct {
	ToolName string `validate:"required"`
	Quantity int    `validate:"min=1"`
}

type unlockForm struct {
	Passphrase string `validate:"max=256"`
}

func newValidator(sites []string) (*validator.Validate, ut.Translator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, err
	}

	allowed := slices.Clone(sites)
	if err := validate.RegisterValidation("site", func(fl validator.FieldLevel) bool {
		return slices.Contains(allowed, fl.Field().String())
	}); err != nil {
		return nil, nil, err
	}
	err := validate.RegisterTranslation("site", trans,
		func(t ut.Translator) error {
			return t.Add("site", "{0} must be one of the listed sites", true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T("site", fe.Field())
			return msg
		},
	)
	if err != nil {
		return nil, nil, err
	}
	return validate, trans, nil
}

// validationMessage renders the first validation failure in plain English.
func (s *server) validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		return validationErrors[0].Translate(s.translator)
	}
	return err.Error()
}

// readWidgets copies the posted checkbox and quantity entries for the
// eligible tools into the session. Tools are addressed by their position in
// the eligibility list.
func readWidgets(r *http.Request, sess *intake.Session, eligible []string) {
	for i, tool := range eligible {
		key := strconv.Itoa(i)
		checked := r.PostForm.Get("tool_"+key) != ""
		sess.SetWidget(tool, checked, parseQuantity(r.PostForm.Get("qty_"+key)))
	}
}

// parseQuantity reads a quantity field. A blank field means the default of
// one; anything unreadable becomes zero and fails validation.
func parseQuantity(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1
	}
	qty, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return qty
}

func toSelectionForms(selections []intake.Selection) []selectionForm {
	out := make([]selectionForm, 0, len(selections))
	for _, sel := range selections {
		out = append(out, selectionForm{ToolName: sel.ToolName, Quantity: sel.Quantity})
	}
	return out
}
