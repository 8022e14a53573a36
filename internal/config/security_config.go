package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
)

// EndpointSecurityConfig maps HTTP route names and gRPC full method names to
// their required security level. Anything missing from the map requires an
// access token.
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Probes and scraping
	"healthz":  SecurityPublic,
	"metrics":  SecurityPublic,
	"statuses": SecurityPublic,

	// gRPC health and reflection
	"/grpc.health.v1.Health/Check":                                   SecurityPublic,
	"/grpc.health.v1.Health/Watch":                                   SecurityPublic,
	"/grpc.reflection.v1.ServerReflection/ServerReflectionInfo":      SecurityPublic,
	"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo": SecurityPublic,

	// Requests
	"createRequest":      SecurityAccess,
	"listRequests":       SecurityAccess,
	"getRequest":         SecurityAccess,
	"approveRequest":     SecurityAccess,
	"rejectRequest":      SecurityAccess,
	"cancelRequest":      SecurityAccess,
	"transitionRequest":  SecurityAccess,
	"getRequestTransfer": SecurityAccess,

	// Transfers
	"listTransfers":   SecurityAccess,
	"getTransfer":     SecurityAccess,
	"pickupTransfer":  SecurityAccess,
	"shipTransfer":    SecurityAccess,
	"deliverTransfer": SecurityAccess,
	"returnTransfer":  SecurityAccess,
	"cancelTransfer":  SecurityAccess,
}

// GetSecurityLevel returns the level of a route or method.
func GetSecurityLevel(route string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[route]; ok {
		return level
	}
	return SecurityAccess
}
