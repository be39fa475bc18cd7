package store

import "errors"

// ErrDuplicateCode is returned by Insert when a member with the same license
// code is already stored. The wrapping error carries the offending code.
var ErrDuplicateCode = errors.New("duplicate member code")

// ErrInvalidRecord is returned by Insert and Update when a required field
// (code, first name or last name) is missing.
var ErrInvalidRecord = errors.New("invalid member record")
