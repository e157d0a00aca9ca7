// Package transport talks to the remote analysis service.
//
// The service exposes one endpoint. Each request carries the query text, the
// conversation id and the prior turns as {role, content} pairs, encoded
// either as multipart/form-data (history as a JSON string field) or as a
// JSON object. The reply is decoded into the Reply tagged union:
//
//   - ReplyText: prose in Text
//   - ReplyChart: caption in Text plus an unvalidated ChartPayload
//   - ReplyError: a service-reported failure in Text
//
// Non-2xx responses surface as *HTTPError; Reason turns any SubmitQuery
// error into the text shown to the user.
package transport
