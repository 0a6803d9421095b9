// Package gateway serves image generation over HTTP.
//
// The gateway does not use the message bus. It generates in the request
// goroutine through a serializing backend wrapper, so one gateway process drives
// one backend instance at a time.
//
// Requests go to /imagePrompt with the fields seed, prompt, steps, height and
// width, taken from the query string and from an optional JSON body. Body values
// win over query values. A successful response carries the raw image bytes with
// the backend's media type as Content-Type.
package gateway
