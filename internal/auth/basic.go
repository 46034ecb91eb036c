package auth

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

const SchemeBasic = "Basic"

// Credentials is a decoded Basic credential pair. It is never persisted.
type Credentials struct {
	Username string
	Password string
}

// ParseBasic decodes an Authorization header of the form "Basic base64(user:pass)".
// The password may itself contain colons; the split happens on the first one.
func ParseBasic(header string) (Credentials, error) {
	if header == "" {
		return Credentials{}, errMissingHeader()
	}
	if !utf8.ValidString(header) {
		return Credentials{}, errInvalidUTF8("authorization header")
	}
	scheme, encoded, _ := strings.Cut(header, " ")
	if scheme != SchemeBasic {
		return Credentials{}, errWrongScheme(SchemeBasic)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return Credentials{}, errBase64(err)
	}
	if !utf8.Valid(decoded) {
		return Credentials{}, errInvalidUTF8("credentials")
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return Credentials{}, errMissingColon()
	}
	return Credentials{Username: username, Password: password}, nil
}
