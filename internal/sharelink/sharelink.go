// Package sharelink builds and parses share links of the form
//
//	{baseURL}/s/{fileID}#{fragment}
//
// The fragment is either the base64url encoded file key or PasswordFragment.
// Browsers and HTTP clients never send the fragment, so only the part before
// '#' may ever reach the server.
package sharelink

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/cryptox"
)

const (
	IDLength = 10
	// PasswordFragment marks a link whose key is derived from a password.
	PasswordFragment = "pw"

	pathPrefix = "/s/"
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10}$`)

// NewFileID returns a random 10-character file id. The alphabet has 64
// symbols, so masking a random byte keeps the distribution uniform.
func NewFileID() string {
	b := common.GenerateRandByteArray(IDLength)
	for i := range b {
		b[i] = alphabet[b[i]&63]
	}
	return string(b)
}

// ValidFileID reports whether id is exactly 10 characters of [A-Za-z0-9_-].
func ValidFileID(id string) bool {
	return idPattern.MatchString(id)
}

// BaseURL returns {baseURL}/s/{fileID}. This is the only part of a link the
// server ever produces or sees.
func BaseURL(baseURL, fileID string) (string, error) {
	if !ValidFileID(fileID) {
		return "", common.NewValidationError("fileId", "must be %d characters of [A-Za-z0-9_-]", IDLength)
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", common.NewValidationError("baseUrl", "must be an absolute http(s) URL")
	}
	if u.Fragment != "" || strings.Contains(baseURL, "#") {
		return "", common.NewValidationError("baseUrl", "must not contain a fragment")
	}
	return strings.TrimRight(baseURL, "/") + pathPrefix + fileID, nil
}

// KeyFragment encodes key as unpadded base64url.
func KeyFragment(key *cryptox.Key) (string, error) {
	if key == nil {
		return "", &common.PrivacyViolationError{Op: "fragment", Reason: "no key supplied"}
	}
	b, err := key.Bytes()
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(b)
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Build assembles the full link. It runs on the sender's machine only.
func Build(baseURL, fileID, fragment string) (string, error) {
	base, err := BaseURL(baseURL, fileID)
	if err != nil {
		return "", err
	}
	if fragment == "" {
		return "", common.NewValidationError("fragment", "must not be empty")
	}
	return base + "#" + fragment, nil
}

// Link is a parsed share link. Printing a Link with any fmt verb shows only
// the base URL.
type Link struct {
	BaseURL string
	FileID  string

	fragment string
}

// Parse splits raw on the first '#', validates the file id and checks that
// the fragment is either PasswordFragment or a 32-byte base64url key.
func Parse(raw string) (Link, error) {
	base, fragment, found := strings.Cut(strings.TrimSpace(raw), "#")
	if !found || fragment == "" {
		return Link{}, common.NewValidationError("link", "missing key fragment")
	}

	i := strings.LastIndex(base, pathPrefix)
	if i < 0 {
		return Link{}, common.NewValidationError("link", "missing %s path", pathPrefix)
	}
	id := base[i+len(pathPrefix):]
	if !ValidFileID(id) {
		return Link{}, common.NewValidationError("fileId", "must be %d characters of [A-Za-z0-9_-]", IDLength)
	}
	if _, err := BaseURL(base[:i], id); err != nil {
		return Link{}, err
	}

	l := Link{BaseURL: base, FileID: id, fragment: fragment}
	if !l.RequiresPassword() {
		b, err := decodeFragment(fragment)
		if err != nil {
			return Link{}, err
		}
		common.WipeByteArray(b)
	}
	return l, nil
}

func decodeFragment(fragment string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(fragment, "="))
	if err != nil {
		return nil, common.NewValidationError("fragment", "not base64url")
	}
	if len(b) != cryptox.KeySize {
		common.WipeByteArray(b)
		return nil, common.NewValidationError("fragment", "key must be %d bytes, got %d", cryptox.KeySize, len(b))
	}
	return b, nil
}

// RequiresPassword reports whether the key must be derived from a password.
func (l Link) RequiresPassword() bool {
	return l.fragment == PasswordFragment
}

// Key decodes the key carried in the fragment.
func (l Link) Key() (*cryptox.Key, error) {
	if l.RequiresPassword() {
		return nil, common.NewValidationError("fragment", "link requires a password")
	}
	b, err := decodeFragment(l.fragment)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(b)
	return cryptox.KeyFromBytes(b)
}

// Full returns the complete link including the fragment. Only the sender
// should ever display it.
func (l Link) Full() string {
	return l.BaseURL + "#" + l.fragment
}

func (l Link) String() string { return l.BaseURL }

func (l Link) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(l.BaseURL))
}
