// Package dispatch splits spectra into fixed-width bands and encodes them as
// OSC messages addressed /fft/<index>.
package dispatch

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"

	"github.com/petems/spectrum-osc/internal/spectrum"
)

// AddressPrefix is prepended to the band index to form the OSC address.
const AddressPrefix = "/fft/"

// Band is a contiguous run of bin magnitudes sent as one message.
type Band struct {
	Index  int
	Values []float32
}

// Address returns the OSC address of the band, e.g. /fft/2.
func (b Band) Address() string {
	return fmt.Sprintf("%s%d", AddressPrefix, b.Index)
}

// Message builds the OSC message carrying the band's values as float32 arguments.
func (b Band) Message() *osc.Message {
	msg := osc.NewMessage(b.Address())
	for _, v := range b.Values {
		msg.Append(v)
	}
	return msg
}

// MarshalBinary encodes the band as an OSC packet.
func (b Band) MarshalBinary() ([]byte, error) {
	return b.Message().MarshalBinary()
}

// Encode splits the magnitudes of s into floor(len/bandWidth) consecutive,
// non-overlapping bands. Bins past the last full band are dropped.
// A non-positive bandWidth yields no bands.
func Encode(s spectrum.Spectrum, bandWidth int) []Band {
	if bandWidth <= 0 {
		return nil
	}

	mags := s.Magnitudes()
	count := len(mags) / bandWidth
	bands := make([]Band, count)
	for i := range bands {
		bands[i] = Band{
			Index:  i,
			Values: mags[i*bandWidth : (i+1)*bandWidth],
		}
	}
	return bands
}
