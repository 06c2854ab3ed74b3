// Package transcription implements the HTTP client for the remote
// transcription provider. It uploads assembled audio artifacts as multipart
// form data, retries transient failures with exponential backoff, and bounds
// concurrent in-flight requests.
package transcription
