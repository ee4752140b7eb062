package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"
	"syscall"
	"time"
)

// ErrAuthentication is returned when credentials are rejected or the API
// token is invalid
type ErrAuthentication struct {
	Code    string
	Message string
}

func (e ErrAuthentication) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrRateLimit is returned when the provider throttles the account. It is a
// temporary error: callers retry once after a fixed backoff before surfacing it.
type ErrRateLimit struct {
	Code    string
	Message string
}

func (e ErrRateLimit) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrAPI is returned for any other provider error code
type ErrAPI struct {
	Code    string
	Message string
}

func (e ErrAPI) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrTimeout is returned when a network request exceeds the configured timeout
type ErrTimeout struct {
	Timeout time.Duration
}

func (e ErrTimeout) Error() string {
	return fmt.Sprintf("connection timeout after %s", e.Timeout)
}

// ErrUnsupportedDataset is returned when an explicitly-provided dataset name
// is not supported
type ErrUnsupportedDataset struct {
	Dataset string
}

func (e ErrUnsupportedDataset) Error() string {
	return fmt.Sprintf("`%s` is not a supported dataset", e.Dataset)
}

// ErrDownload is returned when a scene cannot be downloaded. Reasons carries
// the failure of every download-product candidate that was tried.
type ErrDownload struct {
	Scene   string
	Reasons []error
}

func (e ErrDownload) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("download failed for %s", e.Scene)
	}
	reasons := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		reasons[i] = r.Error()
	}
	return fmt.Sprintf("download failed for %s (%d candidates tried): %s", e.Scene, len(e.Reasons), strings.Join(reasons, "; "))
}

func (e ErrDownload) Unwrap() []error { return e.Reasons }

type errTmpIf interface{ Temporary() bool }
type errTmp struct{ error }

func (t errTmp) Temporary() bool    { return true }
func (t *errTmp) Unwrap() error     { return t.error }
func MakeTemporary(err error) error { return &errTmp{err} }

// Temporary inspects the error trace and returns whether the error is transient
func Temporary(err error) bool {
	var uerr *neturl.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}

	//First override some default syscall temporary statuses
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EIO, syscall.EBUSY, syscall.ECANCELED, syscall.ECONNABORTED, syscall.ECONNRESET, syscall.ENOMEM, syscall.EPIPE:
			return true
		}
	}

	//then check explicitely marked errors
	var tmp errTmpIf
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	var rl ErrRateLimit
	if errors.As(err, &rl) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// MergeErrors, appending texts
// if priorityToErr is true, priority to the first error
// else, priority to no error, then to the temporary error.
func MergeErrors(priorityToError bool, err error, newErrs ...error) error {
	if len(newErrs) == 0 {
		return err
	}
	newErr := newErrs[0]

	if newErr == nil {
		if !priorityToError {
			return nil
		}
	} else if err == nil {
		err = newErr
	} else if priorityToError != Temporary(err) {
		err = fmt.Errorf("%w\n %v", err, newErr)
	} else {
		err = fmt.Errorf("%w\n %v", newErr, err)
	}
	return MergeErrors(priorityToError, err, newErrs[1:]...)
}
