package cli

import "errors"

var errKeyRequired = errors.New("a key argument is required")
