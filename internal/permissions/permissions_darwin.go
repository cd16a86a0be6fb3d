//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

const (
	PermissionNotDetermined = 0
	PermissionRestricted    = 1
	PermissionDenied        = 2
	PermissionAuthorized    = 3
)

// CheckMicrophone returns the current microphone permission status
func CheckMicrophone() int {
	return int(C.checkMicrophonePermission())
}

// EnsureMicrophone requests capture access when it has not been granted yet.
// The first request only shows the system dialog, so the caller sees
// ErrMicrophoneDenied until the user approves and the app is restarted.
func EnsureMicrophone() error {
	switch CheckMicrophone() {
	case PermissionAuthorized:
		return nil
	case PermissionNotDetermined:
		C.requestMicrophonePermission()
	}
	return ErrMicrophoneDenied
}
