package migration

import "errors"

// ErrDuplicateName indicates a definition was registered under a name that is already taken.
var ErrDuplicateName = errors.New("duplicate migration name")

// ErrInvalidDefinition indicates a nil definition or one without a name.
var ErrInvalidDefinition = errors.New("invalid migration definition")
