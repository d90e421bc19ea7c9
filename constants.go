package squarerpc

const (
	RPCStatusOK              = 200
	RPCStatusClientError     = 400
	RPCStatusNotFound        = 404
	RPCStatusRequestTimeout  = 408
	RPCStatusTooManyRequests = 429
	RPCStatusServerError     = 500

	DefaultQoS = 0

	// ClientRequestTimeKey carries the unix nanosecond time a call was issued.
	ClientRequestTimeKey = "client-request-time"
)
