// Package decode turns raw notice payloads into normalized Events. One
// decoder variant exists per alert family; the Registry maps a topic/format
// key to the variant that understands it.
package decode

import (
	"errors"
	"fmt"
	"time"

	"github.com/skywatch/transient-gateway/internal/model"
)

// Sentinel error kinds. Callers match with errors.Is.
var (
	// ErrMalformedPayload: the payload is not valid for its expected wire
	// encoding (bad JSON, bad XML, unparseable event time).
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrMissingRequiredField: the record lacks the key the store uses as
	// the event id.
	ErrMissingRequiredField = errors.New("missing required field")
)

// UnknownFormatError reports a format key with no registered decoder.
type UnknownFormatError struct {
	Format string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("no decoder registered for format %q", e.Format)
}

// Record is one decoded wire message before normalization.
type Record interface {
	// Position returns (ra, dec) in degrees, or nils when the record
	// carries no usable position.
	Position() (ra, dec *float64)
	// Time returns the reported event time; nil when absent, an error when
	// present but unparseable.
	Time() (*time.Time, error)
}

// Decoder is the capability contract every alert family implements.
// Decode validates the wire encoding; Parse fills as many Event fields as
// the format supports, leaving the rest at their empty defaults.
type Decoder interface {
	Decode(raw []byte) (Record, error)
	Parse(rec Record) (*model.Event, error)
}

// Factory builds a decoder bound to the topic it was resolved for.
type Factory func(topic string) Decoder
