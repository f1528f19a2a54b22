package view

import (
	"github.com/pubdesk/pubdesk/internal/profiles"
	"github.com/pubdesk/pubdesk/internal/shared"
)

// Page carries the fields every template expects. Handlers embed it in
// their page-specific view models.
type Page struct {
	Title      string
	Profile    *profiles.Profile
	Flash      *shared.FlashMessage
	CSRFToken  string
	HideChrome bool
}
