package dropboxapi

// withTestBaseURLs points a Client at a local httptest server instead of
// the real Dropbox API endpoints. Internal-test-only: not part of the
// package's public surface.
func withTestBaseURLs(c *Client, base string) {
	c.apiBase = base
	c.contentBase = base
}
