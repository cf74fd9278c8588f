// Package settings implements the single-sector key=value container
// described in spec.md sections 3, 4.1 and 6: strict in-place parsing,
// compaction-on-write, and atomic replacement of the entire sector.
package settings

// isEOFByte reports whether b is one of the three logical end-of-file
// sentinels (erased flash reads 0xFF; 0x00 and 0x1A are additionally
// recognised terminators).
func isEOFByte(b byte) bool {
	return b == 0x00 || b == 0x1A || b == 0xFF
}

func isTerminator(b byte) bool {
	return b == '\r' || b == '\n'
}

// truncateAtEOF returns a copy of raw up to (not including) the first EOF
// sentinel byte, or the whole of raw if none is present.
func truncateAtEOF(raw []byte) []byte {
	n := len(raw)
	for i, b := range raw {
		if isEOFByte(b) {
			n = i
			break
		}
	}
	out := make([]byte, n)
	copy(out, raw[:n])
	return out
}

// line describes one parsed line within an Image's buffer.
//
// start is the offset of the line's first byte; end is the offset just
// past the line's terminator (or len(buf) for a final, unterminated
// line) — i.e. [start, end) is the line's full on-disk span, including
// its terminator. valid reports whether an '=' was found before the
// terminator/EOF with a non-empty key; keyStart/keyEnd and valStart/valEnd
// are only meaningful when valid is true.
type line struct {
	start, end         int
	valid              bool
	keyStart, keyEnd   int
	valStart, valEnd   int
}

// scanLines walks buf (which must already be free of embedded EOF
// sentinel bytes — callers only ever hold a truncated image) and returns
// every line in file order, per the precise parsing rules in spec.md
// section 4.1: a line ends at '\r' or '\n'; the key is the substring up
// to the first '=' seen before the terminator; if no '=' appears, or the
// line starts with '=', the line is not valid (but still occupies its
// span so writers can skip over it unchanged).
func scanLines(buf []byte) []line {
	var lines []line
	i := 0
	for i < len(buf) {
		start := i
		eq := -1
		j := i
		for j < len(buf) && !isTerminator(buf[j]) {
			if eq == -1 && buf[j] == '=' {
				eq = j
			}
			j++
		}
		end := j
		if end < len(buf) {
			end++ // include the terminator byte
		}
		l := line{start: start, end: end}
		if eq > start {
			l.valid = true
			l.keyStart, l.keyEnd = start, eq
			l.valStart, l.valEnd = eq+1, j
		}
		lines = append(lines, l)
		i = end
	}
	return lines
}

// containsAny reports whether b contains any byte for which bad returns
// true.
func containsAny(b []byte, bad func(byte) bool) bool {
	for _, c := range b {
		if bad(c) {
			return true
		}
	}
	return false
}

func validKey(key string) bool {
	if len(key) == 0 {
		return false
	}
	return !containsAny([]byte(key), func(c byte) bool {
		return c == '=' || isTerminator(c) || isEOFByte(c)
	})
}

func validValue(value string) bool {
	return !containsAny([]byte(value), func(c byte) bool {
		return isTerminator(c) || isEOFByte(c)
	})
}

// Image is the in-RAM mirror of one fixed-size settings sector. It holds
// only the logical content — bytes up to (not including) the first EOF
// sentinel — never the sentinel or the unused tail beyond it.
type Image struct {
	fileSize int
	buf      []byte
}

// NewImage returns an empty Image bound to the given fixed file size.
func NewImage(fileSize int) *Image {
	return &Image{fileSize: fileSize, buf: []byte{}}
}

// NewImageFromRaw builds an Image from a raw fileSize-byte sector read,
// truncating at the first EOF sentinel byte.
func NewImageFromRaw(fileSize int, raw []byte) *Image {
	return &Image{fileSize: fileSize, buf: truncateAtEOF(raw)}
}

// Bytes returns the image's logical content (no EOF sentinel, no
// padding) — exactly what Save writes to the storage backend.
func (im *Image) Bytes() []byte {
	out := make([]byte, len(im.buf))
	copy(out, im.buf)
	return out
}

// Get returns the value of the first line whose key matches, or
// ErrNotFound.
func (im *Image) Get(key string) (string, error) {
	for _, l := range scanLines(im.buf) {
		if l.valid && string(im.buf[l.keyStart:l.keyEnd]) == key {
			return string(im.buf[l.valStart:l.valEnd]), nil
		}
	}
	return "", ErrNotFound
}

// Set inserts or replaces key's value. If key already has a line, that
// line's full span (including its terminator) is replaced by
// "key=value\n" in place, regardless of the original terminator. If key
// has no line, "key=value\n" is appended just after the last terminator
// in the image (offset 0 if the image is empty). Returns ErrInvalidArg if
// key or value violate the line grammar, or ErrNoSpace if the resulting
// image would exceed the fixed file size.
func (im *Image) Set(key, value string) error {
	if !validKey(key) || !validValue(value) {
		return ErrInvalidArg
	}
	newLine := []byte(key + "=" + value + "\n")

	lines := scanLines(im.buf)
	for _, l := range lines {
		if l.valid && string(im.buf[l.keyStart:l.keyEnd]) == key {
			newLen := len(im.buf) - (l.end - l.start) + len(newLine)
			if newLen > im.fileSize {
				return ErrNoSpace
			}
			out := make([]byte, 0, newLen)
			out = append(out, im.buf[:l.start]...)
			out = append(out, newLine...)
			out = append(out, im.buf[l.end:]...)
			im.buf = out
			return nil
		}
	}

	pos := appendPosition(im.buf)
	newLen := len(im.buf) + len(newLine)
	if newLen > im.fileSize {
		return ErrNoSpace
	}
	out := make([]byte, 0, newLen)
	out = append(out, im.buf[:pos]...)
	out = append(out, newLine...)
	out = append(out, im.buf[pos:]...)
	im.buf = out
	return nil
}

// appendPosition returns the offset just past the last terminator byte
// in buf, or 0 if buf contains no terminator (including when it is
// empty).
func appendPosition(buf []byte) int {
	for i := len(buf) - 1; i >= 0; i-- {
		if isTerminator(buf[i]) {
			return i + 1
		}
	}
	return 0
}

// Discard removes every line whose key matches, not only the first.
func (im *Image) Discard(key string) {
	lines := scanLines(im.buf)
	out := make([]byte, 0, len(im.buf))
	for _, l := range lines {
		if l.valid && string(im.buf[l.keyStart:l.keyEnd]) == key {
			continue
		}
		out = append(out, im.buf[l.start:l.end]...)
	}
	im.buf = out
}

// Enumerate returns the key=value pair at or after the byte offset
// cursor, plus the cursor to pass for the next pair. Pass 0 as the
// initial cursor. Returns ErrEnd once no further valid pair remains.
func (im *Image) Enumerate(cursor int) (key, value string, next int, err error) {
	for _, l := range scanLines(im.buf) {
		if l.start < cursor {
			continue
		}
		if l.valid {
			return string(im.buf[l.keyStart:l.keyEnd]), string(im.buf[l.valStart:l.valEnd]), l.end, nil
		}
	}
	return "", "", cursor, ErrEnd
}
