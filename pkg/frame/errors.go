package frame

import (
	"errors"
	"fmt"
)

// Category identifies which status slot a decode failure belongs to.
type Category int

const (
	CategoryNone Category = iota
	CategoryNullServiceData
	CategoryInvalidFrameType
	CategoryUID
	CategoryTLM
	CategoryURL
	CategoryWeightFormat
)

var categoryNames = map[Category]string{
	CategoryNone:             "none",
	CategoryNullServiceData:  "null-service-data",
	CategoryInvalidFrameType: "invalid-frame-type",
	CategoryUID:              "malformed-uid",
	CategoryTLM:              "malformed-tlm",
	CategoryURL:              "malformed-url",
	CategoryWeightFormat:     "weight-format",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

var (
	// ErrNoMatch indicates that an advertisement record is not a weight frame. Callers should fall
	// through to beacon decoding; it is not a failure.
	ErrNoMatch = errors.New("frame: not a weight frame")

	ErrNullServiceData   = NewError(CategoryNullServiceData, "null Eddystone service data")
	ErrInvalidFrameType  = NewError(CategoryInvalidFrameType, "invalid frame type")
	ErrMalformedUID      = NewError(CategoryUID, "malformed UID frame")
	ErrMalformedTLM      = NewError(CategoryTLM, "malformed TLM frame")
	ErrMalformedURL      = NewError(CategoryURL, "malformed URL frame")
	ErrWeightFormat      = NewError(CategoryWeightFormat, "failed to parse weight")
	errUnsupportedScheme = errors.New("unsupported URL scheme code")
)

// DecodeError is returned by every decoder in this package. Decoding never panics on malformed
// input; the Category tells the caller which status field to update.
type DecodeError struct {
	Category  Category
	FrameType byte // Only meaningful for CategoryInvalidFrameType.
	Err       error
}

func NewError(category Category, message string) error {
	return &DecodeError{Category: category, Err: errors.New(message)}
}

func (e *DecodeError) Error() string {
	if e.Category == CategoryInvalidFrameType {
		return fmt.Sprintf("invalid frame type byte %02X", e.FrameType)
	}
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DecodeError of the same category, so errors.Is(err,
// ErrMalformedTLM) matches every TLM failure regardless of detail.
func (e *DecodeError) Is(target error) bool {
	if t, ok := target.(*DecodeError); ok {
		return t.Category == e.Category
	}
	return false
}

func newDecodeError(category Category, format string, a ...interface{}) error {
	return &DecodeError{Category: category, Err: fmt.Errorf(format, a...)}
}

func invalidFrameType(b byte) error {
	return &DecodeError{
		Category:  CategoryInvalidFrameType,
		FrameType: b,
		Err:       fmt.Errorf("invalid frame type byte %02X", b),
	}
}

// CategoryOf returns the Category of err, or CategoryNone if err is not a DecodeError.
func CategoryOf(err error) Category {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return decodeErr.Category
	}
	return CategoryNone
}
