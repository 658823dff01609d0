package trace

import (
	"fmt"
	"strconv"
	"strings"
)

// ServiceType tags the kind of component that produced a span.
type ServiceType int16

const (
	ServiceTypeUndefined  ServiceType = -1
	ServiceTypeUnknown    ServiceType = 0
	ServiceTypeHTTPServer ServiceType = 1010
	ServiceTypeGRPCServer ServiceType = 1130
	ServiceTypeHTTPClient ServiceType = 9050
)

func (t ServiceType) String() string {
	switch t {
	case ServiceTypeUndefined:
		return "UNDEFINED"
	case ServiceTypeUnknown:
		return "UNKNOWN"
	case ServiceTypeHTTPServer:
		return "HTTP_SERVER"
	case ServiceTypeGRPCServer:
		return "GRPC_SERVER"
	case ServiceTypeHTTPClient:
		return "HTTP_CLIENT"
	default:
		return strconv.Itoa(int(t))
	}
}

// ParseServiceType accepts either a type name as printed by String or its
// decimal code.
func ParseServiceType(s string) (ServiceType, error) {
	s = strings.TrimSpace(s)
	for _, t := range []ServiceType{
		ServiceTypeUndefined,
		ServiceTypeUnknown,
		ServiceTypeHTTPServer,
		ServiceTypeGRPCServer,
		ServiceTypeHTTPClient,
	} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 16)
	if err != nil {
		return ServiceTypeUndefined, fmt.Errorf("invalid service type %q", s)
	}
	return ServiceType(n), nil
}

// Set implements flag.Value.
func (t *ServiceType) Set(s string) error {
	v, err := ParseServiceType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParentApplication names the service that called this one.
type ParentApplication struct {
	Name string
	Type ServiceType
}
