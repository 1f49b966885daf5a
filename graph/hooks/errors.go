package hooks

import "errors"

var errSubscriberRequired = errors.New("hooks: subscriber is required")
