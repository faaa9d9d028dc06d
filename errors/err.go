package errors

import (
	"fmt"
)

var (
	ErrInvalidConfig = fmt.Errorf("loreengine: invalid config")
	ErrNotFound      = fmt.Errorf("loreengine: not found")
	ErrInvalidParams = fmt.Errorf("loreengine: invalid params")
	ErrInternal      = fmt.Errorf("loreengine: internal error")
	ErrTimeout       = fmt.Errorf("loreengine: timeout")
	ErrNoMetadata    = fmt.Errorf("loreengine: no metadata block")
)
