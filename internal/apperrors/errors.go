package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrAmountInvalid = errors.New("amount must be positive")

	ErrTokenNotFound        = errors.New("payment token not found")
	ErrTokenAlreadyRedeemed = errors.New("payment token already redeemed")
	ErrTokenExpired         = errors.New("payment token expired")
	ErrTokenCancelled       = errors.New("payment token cancelled")
	ErrTokenOwnRedeem       = errors.New("payment token can't be redeemed by its issuer")

	ErrQRPayloadEmpty   = errors.New("qr payload is empty")
	ErrQRPayloadInvalid = errors.New("qr payload is invalid")

	ErrBalanceInsufficient = errors.New("insufficient balance")
)
