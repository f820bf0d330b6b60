// Package akapi dispatches calls from administrative tools to the
// ActionKit REST API.
//
// Every call runs the same pipeline:
//
//   - Normalize the path against the API base (/rest/v1/) and derive the
//     request identity "METHOD path data"
//   - Serialize the payload (JSON, or urlencoded for GET and on request)
//   - Check the write guard: mutating calls need AllowWrites or a matching
//     read-safe exception
//   - Answer cacheable calls from the result cache
//   - Send the request with CSRF and Accept headers
//   - Interpret the response by its status (json, location, status...)
//
// Typical usage:
//
//	client := akapi.New(
//	    akapi.WithBaseURL("https://act.example.org"),
//	    akapi.WithAllowWrites(false),
//	    akapi.WithTokenSource(akapi.CookieTokens{Jar: jar, URL: siteURL}),
//	)
//	res, err := client.GetCached(ctx, "user/", akapi.Fields(map[string]any{"email": addr}))
//
// Failures are *APIError values whose Kind tells them apart; all of them
// are logged, optionally shown to the user through a Notifier, and then
// returned. Nothing is retried.
package akapi
