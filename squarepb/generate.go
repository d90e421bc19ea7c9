// Package squarepb holds the square.v1 wire contract shared by servers and clients.
package squarepb

//go:generate protoc -I .. --go_out=.. --go_opt=paths=source_relative --go-grpc_out=.. --go-grpc_opt=paths=source_relative ../squarepb/square.proto
