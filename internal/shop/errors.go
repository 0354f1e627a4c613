package shop

import "errors"

var ErrAccountRequired = errors.New("account id is required")
