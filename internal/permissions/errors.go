package permissions

import "errors"

// ErrMicrophoneDenied means audio input is blocked by the OS privacy settings.
var ErrMicrophoneDenied = errors.New("microphone permission not granted")
