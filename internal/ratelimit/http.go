package ratelimit

import "net/http"

// ResponseHeaders adapts an *http.Response (via its Header and the request's
// provider name) into a HeaderSnapshotSource for Manager.Release.
type ResponseHeaders struct {
	Provider string
	Header   http.Header
}

// Headers implements HeaderSnapshotSource.
func (r ResponseHeaders) Headers() (HeaderSnapshot, bool) {
	if r.Header == nil {
		return HeaderSnapshot{}, false
	}
	snap := ParserFor(r.Provider)(r.Header)
	if snap == (HeaderSnapshot{}) {
		return snap, false
	}
	return snap, true
}
