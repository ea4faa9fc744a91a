package middleware

import "errors"

// ErrInvalidMiddleware is returned by [Wrap] when a Config has no Send
// function.
var ErrInvalidMiddleware = errors.New("sesh: middleware config without Send function")
