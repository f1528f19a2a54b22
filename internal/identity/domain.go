// Package identity handles federated sign-in through an OpenID Connect
// provider and maps the resulting principal onto a stored profile.
package identity

// Principal is an authenticated external identity. It is read-only input:
// the identity provider owns it, this system only records a profile for it.
type Principal struct {
	Subject     string
	Email       string
	DisplayName string
}
