// Package opus provides a [playback.Renderer] that decodes Opus packets and
// hands the resulting PCM to a platform output callback.
package opus

import (
	"context"
	"fmt"

	"layeh.com/gopus"

	"github.com/mia21com/handsfree/pkg/playback"
)

// frameSizeMs is the Opus frame duration the decoder expects per packet.
const frameSizeMs = 20

// Renderer decodes one Opus packet per [playback.Item] and forwards the
// decoded little-endian int16 PCM to the output callback. A single decoder
// instance is kept for the stream so decoder state carries across
// consecutive packets.
type Renderer struct {
	dec        *gopus.Decoder
	out        func(pcm []byte)
	frameSize  int // samples per channel per packet
	channels   int
}

// Compile-time check that *Renderer satisfies playback.Renderer.
var _ playback.Renderer = (*Renderer)(nil)

// New creates a Renderer decoding at the given sample rate and channel
// count. out receives each decoded PCM block and must not block for long; it
// runs on the playback dispatch goroutine.
func New(sampleRate, channels int, out func(pcm []byte)) (*Renderer, error) {
	if out == nil {
		return nil, fmt.Errorf("opus: output callback must not be nil")
	}
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Renderer{
		dec:       dec,
		out:       out,
		frameSize: sampleRate * frameSizeMs / 1000,
		channels:  channels,
	}, nil
}

// Render implements playback.Renderer. Decode failures are returned to the
// coordinator, which skips the item.
func (r *Renderer) Render(ctx context.Context, item playback.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pcm, err := r.dec.Decode(item.Data, r.frameSize, false)
	if err != nil {
		return fmt.Errorf("opus: decode item %q: %w", item.ID, err)
	}
	r.out(int16sToBytes(pcm))
	return nil
}

// Close implements playback.Renderer. The gopus decoder holds no resources
// that need explicit release.
func (r *Renderer) Close() error { return nil }

// int16sToBytes converts int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
