// Package filter turns dashboard listing requests into SQL.
//
// A Request is normalized before use: malformed values are corrected rather
// than rejected and the caller's role narrows the visible orders. The
// Compiler selects one page of order ids plus the total, with a count-only
// pass for badge counters.
package filter
