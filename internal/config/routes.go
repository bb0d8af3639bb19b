// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/trac-platform/trac/internal/gateway"
	"github.com/trac-platform/trac/internal/gateway/restproxy"
)

// routeFile is the on-disk shape of a gateway routes file: one entry
// per Route, with an optional list of REST<->gRPC Mappings attached to
// REST_MAPPED entries.
type routeFile struct {
	Routes []routeEntry `yaml:"routes"`
}

type routeEntry struct {
	Prefix string         `yaml:"prefix"`
	Class  string         `yaml:"class"`
	Target targetEntry    `yaml:"target"`
	Rest   []mappingEntry `yaml:"rest,omitempty"`
}

type targetEntry struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Path   string `yaml:"path,omitempty"`
}

type mappingEntry struct {
	HTTPMethod string   `yaml:"http_method"`
	PathTmpl   string   `yaml:"path_template"`
	GRPCMethod string   `yaml:"grpc_method"`
	BodyFields []string `yaml:"body_fields,omitempty"`
}

var classByName = map[string]gateway.ProtocolClass{
	"HTTP_PROXY":  gateway.HTTPProxy,
	"GRPC_PROXY":  gateway.GRPCProxy,
	"GRPC_WEB":    gateway.GRPCWeb,
	"REST_MAPPED": gateway.RESTMapped,
	"INTERNAL":    gateway.Internal,
}

// LoadRoutes reads a gateway routes file's declarative route table,
// returning the Route list (in file declaration order —
// gateway.NewRouter is responsible for the longest-prefix sort) and,
// for REST_MAPPED routes, the REST<->gRPC Mappings attached to them.
func LoadRoutes(path string) ([]gateway.Route, map[string][]restproxy.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading routes file %q: %w", path, err)
	}

	var file routeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("parsing routes file %q: %w", path, err)
	}

	routes := make([]gateway.Route, 0, len(file.Routes))
	restMappings := make(map[string][]restproxy.Mapping)
	for _, entry := range file.Routes {
		class, ok := classByName[entry.Class]
		if !ok {
			return nil, nil, fmt.Errorf("routes file %q: unknown protocol class %q for prefix %q", path, entry.Class, entry.Prefix)
		}
		routes = append(routes, gateway.Route{
			Prefix: entry.Prefix,
			Class:  class,
			Target: gateway.Target{
				Scheme: entry.Target.Scheme,
				Host:   entry.Target.Host,
				Port:   entry.Target.Port,
				Path:   entry.Target.Path,
			},
		})
		if class == gateway.RESTMapped && len(entry.Rest) > 0 {
			mappings := make([]restproxy.Mapping, 0, len(entry.Rest))
			for _, m := range entry.Rest {
				mappings = append(mappings, restproxy.Mapping{
					HTTPMethod: m.HTTPMethod,
					PathTmpl:   m.PathTmpl,
					GRPCMethod: m.GRPCMethod,
					BodyFields: m.BodyFields,
				})
			}
			restMappings[entry.Prefix] = mappings
		}
	}

	return routes, restMappings, nil
}
