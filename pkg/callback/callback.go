package callback

import (
	"net/url"
	"strconv"
	"strings"
)

// Query parameter names carried by provider callback URLs.
const (
	ParamAccessToken      = "access_token"
	ParamRefreshToken     = "refresh_token"
	ParamExpiresIn        = "expires_in"
	ParamTokenType        = "token_type"
	ParamType             = "type"
	ParamError            = "error"
	ParamErrorCode        = "error_code"
	ParamErrorDescription = "error_description"
)

// Tokens is the token material extracted from a callback URL.
// Every field is optional.
type Tokens struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int
	TokenType        string
	Type             string
	Error            string
	ErrorCode        string
	ErrorDescription string
}

// HasSession reports whether both the access and refresh token are present.
func (t Tokens) HasSession() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}

// HasError reports whether the provider redirected with an error.
func (t Tokens) HasError() bool {
	return t.Error != "" || t.ErrorCode != "" || t.ErrorDescription != ""
}

// IsEmpty reports whether no recognizable parameter was found.
func (t Tokens) IsEmpty() bool {
	return t == Tokens{}
}

// Parse extracts tokens from a deep-link URL. The fragment is preferred,
// then the query, then the whole string parsed as a URL. Parse never fails:
// unparseable input yields empty Tokens.
func Parse(raw string) Tokens {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Tokens{}
	}

	if _, fragment, ok := strings.Cut(raw, "#"); ok {
		return fromValues(parseQuery(fragment))
	}

	if _, query, ok := strings.Cut(raw, "?"); ok {
		return fromValues(parseQuery(query))
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Tokens{}
	}
	return fromValues(u.Query())
}

// Encode renders tokens as a query string, in the shape Parse reads back.
// Empty fields are omitted.
func Encode(t Tokens) string {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set(ParamAccessToken, t.AccessToken)
	set(ParamRefreshToken, t.RefreshToken)
	if t.ExpiresIn > 0 {
		v.Set(ParamExpiresIn, strconv.Itoa(t.ExpiresIn))
	}
	set(ParamTokenType, t.TokenType)
	set(ParamType, t.Type)
	set(ParamError, t.Error)
	set(ParamErrorCode, t.ErrorCode)
	set(ParamErrorDescription, t.ErrorDescription)
	return v.Encode()
}

// parseQuery keeps whatever url.ParseQuery could decode; malformed pairs are
// dropped rather than failing the whole string.
func parseQuery(s string) url.Values {
	s = strings.TrimPrefix(s, "?")
	values, _ := url.ParseQuery(s)
	if values == nil {
		return url.Values{}
	}
	return values
}

func fromValues(v url.Values) Tokens {
	t := Tokens{
		AccessToken:      v.Get(ParamAccessToken),
		RefreshToken:     v.Get(ParamRefreshToken),
		TokenType:        v.Get(ParamTokenType),
		Type:             v.Get(ParamType),
		Error:            v.Get(ParamError),
		ErrorCode:        v.Get(ParamErrorCode),
		ErrorDescription: v.Get(ParamErrorDescription),
	}
	if n, err := strconv.Atoi(v.Get(ParamExpiresIn)); err == nil && n > 0 {
		t.ExpiresIn = n
	}
	return t
}
