// Package fitparse recovers activity metadata from raw FIT bytes. It backs
// the client's optional upload-identity correlation.
package fitparse

import (
	"bytes"
	"errors"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/filedef"
)

// Parser decodes FIT activity files. The zero value is ready to use.
type Parser struct{}

// New returns a Parser.
func New() *Parser { return &Parser{} }

// SessionStartTime decodes data as a FIT activity file and returns the start
// time of its session message. FIT timestamps are UTC by definition.
func (p *Parser) SessionStartTime(data []byte) (time.Time, error) {
	lis := filedef.NewListener()
	defer lis.Close()

	dec := decoder.New(bytes.NewReader(data),
		decoder.WithMesgListener(lis),
		decoder.WithBroadcastOnly(),
	)
	if _, err := dec.Decode(); err != nil {
		return time.Time{}, err
	}

	activity, ok := lis.File().(*filedef.Activity)
	if !ok {
		return time.Time{}, errors.New("not a FIT activity file")
	}
	if len(activity.Sessions) == 0 {
		return time.Time{}, errors.New("FIT activity file has no session message")
	}

	start := activity.Sessions[0].StartTime
	if start.IsZero() {
		return time.Time{}, errors.New("FIT session message has no start time")
	}
	return start.UTC(), nil
}
