package models

import "github.com/golang-jwt/jwt/v5"

// AccessClaims is the payload of access tokens issued by the identity
// provider. The subject is the principal id.
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}
