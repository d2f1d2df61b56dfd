package resp

import "strconv"

var crlf = []byte("\r\n")

// Encode renders v as a RESP-2 frame.
func Encode(v Value) []byte {
	return AppendEncode(nil, v)
}

// AppendEncode appends the encoding of v to dst and returns the result.
func AppendEncode(dst []byte, v Value) []byte {
	switch v.Kind {
	case KindSimpleString:
		dst = append(dst, '+')
		dst = append(dst, v.Str...)
		return append(dst, crlf...)
	case KindError:
		dst = append(dst, '-')
		dst = append(dst, v.Str...)
		return append(dst, crlf...)
	case KindInteger:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, v.Int, 10)
		return append(dst, crlf...)
	case KindBulkString:
		if v.Null {
			return append(dst, "$-1\r\n"...)
		}
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(v.Str)), 10)
		dst = append(dst, crlf...)
		dst = append(dst, v.Str...)
		return append(dst, crlf...)
	case KindArray:
		if v.Null {
			return append(dst, "*-1\r\n"...)
		}
		dst = append(dst, '*')
		dst = strconv.AppendInt(dst, int64(len(v.Elems)), 10)
		dst = append(dst, crlf...)
		for _, el := range v.Elems {
			dst = AppendEncode(dst, el)
		}
		return dst
	}
	// Unreachable for values built through this package.
	return dst
}

// EncodeCommand renders a client request: an array of bulk strings with
// the command name first.
func EncodeCommand(name string, args ...[]byte) []byte {
	elems := make([]Value, 0, len(args)+1)
	elems = append(elems, BulkString([]byte(name)))
	for _, a := range args {
		elems = append(elems, BulkString(a))
	}
	return Encode(Array(elems...))
}
