package domain

import "errors"

var ErrInvalidRole = errors.New("invalid role")
