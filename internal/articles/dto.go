package articles

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ArticleForm carries the writable fields of an article. Ownership fields
// are deliberately absent: they are fixed at creation.
type ArticleForm struct {
	Title    string `validate:"required,max=300"`
	Authors  string `validate:"required,max=500"`
	Venue    string `validate:"required,max=300"`
	Category string `validate:"required,oneof=Journal Conference Workshop Preprint Other"`
}

// FormFromRequest reads and trims the article fields from a posted form.
func FormFromRequest(r *http.Request) ArticleForm {
	return ArticleForm{
		Title:    strings.TrimSpace(r.PostFormValue("title")),
		Authors:  strings.TrimSpace(r.PostFormValue("authors")),
		Venue:    strings.TrimSpace(r.PostFormValue("venue")),
		Category: strings.TrimSpace(r.PostFormValue("category")),
	}
}

// Validate checks the form against the field rules.
func (f ArticleForm) Validate() error {
	return validate.Struct(f)
}
