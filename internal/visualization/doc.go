// Package visualization interprets chart replies.
//
// Resolve maps a transport.Reply onto the store.NewMessage to append:
//
//   - chart type: line, bar or pie; anything else is line
//   - data keys: blanks and duplicates dropped, order and spelling kept;
//     pie keeps only the first
//   - rows: passed through untouched
//   - no rows or no keys: a text message with the caption
//
// FormatNumber is the shared value formatter for every renderer.
package visualization
