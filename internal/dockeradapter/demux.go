package dockeradapter

import "encoding/binary"

// Stream identifies which logical stream a demuxed entry belongs to.
type Stream byte

const (
	StreamStdout Stream = 1
	StreamStderr Stream = 2
)

// Entry is one logical run of output on a single stream. Consecutive frames
// on the same stream are merged into one entry.
type Entry struct {
	Stream Stream
	Text   string
}

// Demuxer incrementally decodes Docker's multiplexed stdout/stderr framing:
// 8-byte headers where byte 0 is the stream type (2 = stderr, anything else
// is treated as stdout) and bytes 4-7 are the big-endian payload length.
//
// Feed raw chunks with Write in any sizes; frames may span chunk boundaries.
// Bytes belonging to an incomplete frame are held until the rest arrives.
type Demuxer struct {
	pending []byte
	entries []Entry
}

// Write appends a chunk of the multiplexed byte stream and emits every frame
// that is now complete. Always succeeds; implements io.Writer so the decoder
// can sit behind io.Copy.
func (d *Demuxer) Write(p []byte) (int, error) {
	d.pending = append(d.pending, p...)
	for {
		if len(d.pending) < 8 {
			return len(p), nil
		}
		size := int(binary.BigEndian.Uint32(d.pending[4:8]))
		if len(d.pending) < 8+size {
			return len(p), nil
		}
		stream := StreamStdout
		if d.pending[0] == byte(StreamStderr) {
			stream = StreamStderr
		}
		if size > 0 {
			d.append(stream, string(d.pending[8:8+size]))
		}
		d.pending = d.pending[8+size:]
	}
}

func (d *Demuxer) append(stream Stream, text string) {
	if n := len(d.entries); n > 0 && d.entries[n-1].Stream == stream {
		d.entries[n-1].Text += text
		return
	}
	d.entries = append(d.entries, Entry{Stream: stream, Text: text})
}

// Entries returns the logical entries decoded so far.
func (d *Demuxer) Entries() []Entry {
	return d.entries
}

// Collect concatenates all decoded output per stream.
func (d *Demuxer) Collect() (stdout, stderr string) {
	for _, e := range d.entries {
		if e.Stream == StreamStderr {
			stderr += e.Text
		} else {
			stdout += e.Text
		}
	}
	return stdout, stderr
}

// DecodeTTY handles the fully-buffered TTY variant: with a TTY attached
// there is no framing and the raw bytes are a single stdout entry.
func DecodeTTY(raw []byte) []Entry {
	if len(raw) == 0 {
		return nil
	}
	return []Entry{{Stream: StreamStdout, Text: string(raw)}}
}
