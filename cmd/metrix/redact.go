package main

import "net/url"

// redactedURI hides credentials embedded in a connection URI before it is logged.
func redactedURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid"
	}
	return u.Redacted()
}
