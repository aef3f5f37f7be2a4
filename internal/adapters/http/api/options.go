package api

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithIngestRateLimit sets the requests per second allowed per client IP on
// the ingestion routes. Zero disables the limit.
func WithIngestRateLimit(perSecond int) Option {
	return func(s *Server) {
		if perSecond >= 0 {
			s.ingestRateLimit = perSecond
		}
	}
}
