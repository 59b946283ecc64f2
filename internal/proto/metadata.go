// Package proto holds the AccountGate gRPC contract generated from
// accountgate.proto.
package proto

//go:generate protoc --go_out=. --go_opt=paths=source_relative --go-grpc_out=. --go-grpc_opt=paths=source_relative accountgate.proto

// AccessTokenHeader is the metadata key carrying the credential token.
const AccessTokenHeader = "access_token"
