package codec

import "fmt"

// ErrCodeCodecFailed is the error code carried by CodecError.
const ErrCodeCodecFailed = "CODEC_FAILED"

// CodecError reports a payload that could not be decoded or encoded. It is
// fatal to a repricing run.
type CodecError struct {
	Op       string
	Encoding string
	Err      error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrCodeCodecFailed, e.Op, e.Encoding, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

func (e *CodecError) Code() string { return ErrCodeCodecFailed }
