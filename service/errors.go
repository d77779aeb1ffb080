package service

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"syscall"
	"time"

	"github.com/eudr-packhouse/parcel-ingester/service/log"
	"google.golang.org/api/googleapi"
)

type errTmpIf interface{ Temporary() bool }
type errTmp struct{ error }

func (t errTmp) Temporary() bool    { return true }
func (t *errTmp) Unwrap() error     { return t.error }
func MakeTemporary(err error) error { return &errTmp{err} }

type errFatalIf interface{ Fatal() bool }
type errFatal struct{ error }

func (t errFatal) Fatal() bool    { return true }
func (t *errFatal) Unwrap() error { return t.error }
func MakeFatal(err error) error   { return &errFatal{err} }

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

	//first check explicitely marked error
	var tmp errTmpIf
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	var gapiError *googleapi.Error
	if errors.As(err, &gapiError) {
		return gapiError.Code == 429 || gapiError.Code == 500
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// Fatal inspects the error and returns whether it's a fatal error
func Fatal(err error) bool {
	var tmp errFatalIf
	if errors.As(err, &tmp) {
		return tmp.Fatal()
	}
	return false
}

//go:generate enumer -json -type Kind -trimprefix Kind

// Kind of a user-facing error raised while ingesting a vector file
type Kind int

const (
	KindProcessing Kind = iota
	KindFormat
	KindGeometryType
	KindEmpty
)

// User-facing messages
const (
	MsgInvalidFormat        = "invalid/corrupt file format"
	MsgUnsupportedExtension = "invalid file format"
	MsgInvalidGeometryType  = "invalid geometry type"
	MsgNoPolygons           = "no polygons found"
	MsgUnreadable           = "could not read file"
	MsgProcessing           = "could not process file"
)

// Error is an error that can be reported to the user who uploaded the file.
// The underlying cause is kept for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// MakeFormatError returns an error of KindFormat
func MakeFormatError(msg string, err error) error {
	return &Error{Kind: KindFormat, Message: msg, Err: err}
}

// MakeGeometryTypeError returns an error of KindGeometryType
func MakeGeometryTypeError(err error) error {
	return &Error{Kind: KindGeometryType, Message: MsgInvalidGeometryType, Err: err}
}

// MakeEmptyError returns an error of KindEmpty
func MakeEmptyError() error {
	return &Error{Kind: KindEmpty, Message: MsgNoPolygons}
}

// MakeProcessingError returns an error of KindProcessing.
// If err is already an *Error, it is returned unchanged.
func MakeProcessingError(msg string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindProcessing, Message: msg, Err: err}
}

// AsError returns the user-facing error of the chain, if any
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ErrorKind returns the kind of the user-facing error of the chain, or KindProcessing
func ErrorKind(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindProcessing
}

// MergeErrors, appending texts
// if priorityToErr is true, priority to the fatal error then to the temporary
// else, priority to no error, then to the temporary and finally to the fatal error.
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

// Retriable calls f at most n times, waiting delay between the calls, until it succeeds.
// A fatal error is returned at once. The last error is returned.
func Retriable(ctx context.Context, f func() error, delay time.Duration, n int) error {
	var err error
	for i := 0; i < n; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return MergeErrors(true, err, ctx.Err())
			case <-time.After(delay):
			}
		}
		if err = f(); err == nil || Fatal(err) {
			return err
		}
		log.Logger(ctx).Sugar().Debugf("retriable: try %d/%d failed: %v", i+1, n, err)
	}
	return err
}
