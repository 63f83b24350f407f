package youtubeapi

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrorClass tells the executor how to react to a failed call.
type ErrorClass int

const (
	// ErrorClassFatal errors are returned to the caller after one attempt.
	ErrorClassFatal ErrorClass = iota
	// ErrorClassQuota errors trigger a credential rotation.
	ErrorClassQuota
	// ErrorClassTransient errors are retried on the same client after the retry delay.
	ErrorClassTransient
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassQuota:
		return "quota"
	case ErrorClassTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Sentinel errors.
var (
	ErrNoCredentials         = errors.New("youtubeapi: credential pool is empty")
	ErrAllKeysExhausted      = errors.New("youtubeapi: quota exhausted on every credential")
	ErrServerRetriesExceeded = errors.New("youtubeapi: server error retries exceeded")
	ErrVideoNotFound         = errors.New("youtubeapi: video not found")
	// ErrChatEnded wraps chat page errors whose reason says the chat is over.
	ErrChatEnded = errors.New("youtubeapi: live chat ended")
)

// chatEndReasons are the liveChatMessages.list reasons for a finished or missing chat.
var chatEndReasons = []string{"liveChatEnded", "liveChatNotFound", "liveChatDisabled"}

// quotaReasons are the googleapi error reasons that signal an exhausted credential.
var quotaReasons = []string{"quotaExceeded", "dailyLimitExceeded"}

// Classify sorts an API error into quota exhaustion, transient server failure or anything else.
//
// Quota: HTTP 403 whose reasons (or raw body) mention quotaExceeded/dailyLimitExceeded.
// Transient: any HTTP 5xx.
// Everything else, including transport errors that never produced a response, is fatal.
func Classify(err error) ErrorClass {
	var gerr *googleapi.Error
	if err == nil || !errors.As(err, &gerr) {
		return ErrorClassFatal
	}
	if gerr.Code == http.StatusForbidden && isQuota(gerr) {
		return ErrorClassQuota
	}
	if gerr.Code >= 500 && gerr.Code <= 599 {
		return ErrorClassTransient
	}
	return ErrorClassFatal
}

func isQuota(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		for _, r := range quotaReasons {
			if item.Reason == r {
				return true
			}
		}
	}
	for _, r := range quotaReasons {
		if strings.Contains(gerr.Body, r) || strings.Contains(gerr.Message, r) {
			return true
		}
	}
	return false
}

// HasReason reports whether err is a googleapi error carrying the given reason.
func HasReason(err error, reason string) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, item := range gerr.Errors {
		if item.Reason == reason {
			return true
		}
	}
	return strings.Contains(gerr.Body, reason)
}

func chatEnded(err error) bool {
	for _, r := range chatEndReasons {
		if HasReason(err, r) {
			return true
		}
	}
	return false
}

// StatusCode returns the HTTP status of a googleapi error, or 0.
func StatusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
