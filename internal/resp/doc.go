// Package resp implements the RESP-2 wire format used by BlinkDB.
//
// The protocol carries five value kinds, each a CRLF-terminated frame
// identified by its first byte: simple strings (+), errors (-), integers
// (:), bulk strings ($) and arrays (*). The decoder is incremental: it
// consumes a complete frame from the front of a byte slice or reports
// that more data is needed, which lets the connection layer accumulate
// partial reads without blocking.
package resp
