// Package job defines the wire protocol between image job publishers and workers.
//
// A job is a JSON object published on subject "img_gen":
//
//	{"seed": 42, "prompt": "a red fox", "num_steps": 4, "height": 512, "width": 512}
//
// The answer is sent to the request's reply address. Its body is the raw image
// payload (empty on failure) and it carries two headers:
//
//	mediaType: image/png
//	success:   true | false
//
// Workers build replies only through ReplyFor, so a successful reply always has a
// non-empty payload and media type, and a failed one always has an empty payload.
package job
