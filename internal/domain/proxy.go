package domain

// Proxy is one leased proxy handle from the rental provider. The URL carries
// scheme, credentials, host and port, ready for http.Transport.Proxy. The ID
// is the provider's lease id, needed to unlock the proxy at cycle end.
type Proxy struct {
	ID  int64
	URL string
}
