// Package squarerpc is the transport independent call pipeline shared by the
// gRPC and MQTT bindings of the square service.
//
// A transport decodes an incoming call into a Context and hands it to
// Server.Call, which rate limits it, looks up the registered Handler and runs
// it on a bounded worker pool. Whatever the handler replies is sent back
// through the same Context exactly once.
package squarerpc

// Registrar is implemented by anything handlers can be registered on.
type Registrar interface {
	Register(method string, hdl *Handler)
}
