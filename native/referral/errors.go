package referral

import "errors"

var (
	ErrCodeNotFound   = errors.New("referral: code not found")
	ErrCodeTaken      = errors.New("referral: code already registered")
	ErrEmptyCode      = errors.New("referral: empty code")
	ErrTierMismatch   = errors.New("referral: no unique tier for volume")
	ErrTierOverlap    = errors.New("referral: tier ranges overlap")
	ErrTierGap        = errors.New("referral: tier ranges leave a gap")
	ErrInvalidTier    = errors.New("referral: invalid tier")
	ErrNilQuote       = errors.New("referral: nil quote")
	ErrQuantityZero   = errors.New("referral: quantity must be positive")
	ErrAmountOverflow = errors.New("referral: amount overflow")
)
