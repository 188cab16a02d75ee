// Package jwt issues and verifies HS256 access tokens on top of
// github.com/golang-jwt/jwt/v5.
//
// Tokens carry the registered claims plus the subject's email:
//
//	svc, err := jwt.NewFromString(secret, jwt.WithIssuer("profilekit"))
//	if err != nil {
//		return err
//	}
//	tok, claims, err := svc.Issue(userID, email, time.Hour)
//
//	claims, err = svc.Parse(tok)          // rejects expired tokens
//	claims, err = svc.ParseExpired(tok)   // returns claims with ErrExpiredToken
//
// Only HS256 is accepted when parsing. Middleware verifies bearer tokens and
// exposes the claims through GetClaims.
package jwt
