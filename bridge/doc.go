// Package bridge lets one duplex byte stream be driven through two read
// contracts.
//
// Contract A (PollReader) reads into a ReadBuf that tracks filled,
// initialized and unfilled regions. Contract B (CursorReader) reads through a
// Cursor that only exposes how much may still be written. Adapter implements
// both on top of a single read path, so the bookkeeping that decides which
// bytes count as data lives in ReadBuf.Advance and nowhere else.
//
// Write-side calls (Write, Flush, Shutdown, WriteVectored) are forwarded to
// the wrapped stream without buffering.
package bridge
