// Package render turns conversations into terminal output and HTML.
//
// Charts are shown as tables: line and bar charts list one column per data
// key (single-series bar charts add an inline bar), pie charts list
// "name: value (pct%)" labels. Tables page DefaultPageSize rows at a time and
// announce what is left with "Load more (N remaining)". A chart without rows
// prints NoDataText.
//
// Text messages are markdown: glamour styles them for the terminal and
// goldmark converts them for the HTML transcript.
package render
