// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package restproxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/trac-platform/trac/internal/gateway"
)

// jsonCodecName matches the "json" grpc codec internal/metaapi registers
// for the Trusted/Public servers; restproxy registers its own copy
// rather than importing the metaapi server package just for this one
// side effect, which would pull the whole Metadata API implementation
// into the gateway's dependency graph.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return jsonCodecName }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Handler serves a declarative table of REST<->gRPC Mappings against a
// single upstream Target, decoding/encoding requests with the "json"
// grpc codec internal/metaapi registers — there is no generated
// proto.Message for these methods, so the request/response values
// dialed here are plain map[string]interface{} JSON documents, not
// protobuf structs.
type Handler struct {
	target   gateway.Target
	mappings []compiledMapping
	log      *zap.Logger
}

type compiledMapping struct {
	Mapping
	segments   []segment
	bodyFields map[string]bool
}

type segment struct {
	literal string
	param   string
}

// New compiles mappings against target.
func New(target gateway.Target, mappings []Mapping, log *zap.Logger) *Handler {
	compiled := make([]compiledMapping, 0, len(mappings))
	for _, m := range mappings {
		fields := make(map[string]bool, len(m.BodyFields))
		for _, f := range m.BodyFields {
			fields[f] = true
		}
		compiled = append(compiled, compiledMapping{Mapping: m, segments: compileTemplate(m.PathTmpl), bodyFields: fields})
	}
	return &Handler{target: target, mappings: compiled, log: log}
}

func compileTemplate(tmpl string) []segment {
	parts := strings.Split(strings.Trim(tmpl, "/"), "/")
	segments := make([]segment, len(parts))
	for i, p := range parts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			segments[i] = segment{param: strings.Trim(p, "{}")}
		} else {
			segments[i] = segment{literal: p}
		}
	}
	return segments
}

func (c compiledMapping) match(method, path string) (map[string]string, bool) {
	if c.HTTPMethod != method {
		return nil, false
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != len(c.segments) {
		return nil, false
	}
	params := make(map[string]string, len(c.segments))
	for i, seg := range c.segments {
		if seg.param != "" {
			params[seg.param] = parts[i]
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var params map[string]string
	var mapping compiledMapping
	matched := false
	for _, m := range h.mappings {
		if p, ok := m.match(r.Method, r.URL.Path); ok {
			params, mapping, matched = p, m, true
			break
		}
	}
	if !matched {
		http.Error(w, "no REST mapping for this path", http.StatusNotFound)
		return
	}

	req := map[string]interface{}{}
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		// There's no generated proto.Message for these methods to decode
		// strictly against (json.Decoder.DisallowUnknownFields only
		// applies to a struct destination), so unknown fields are
		// rejected against the mapping's own declared allow-list instead
		// — before the method is ever invoked over gRPC.
		for k := range req {
			if !mapping.bodyFields[k] {
				http.Error(w, fmt.Sprintf("unknown request field %q", k), http.StatusBadRequest)
				return
			}
		}
	}
	for k, v := range params {
		req[k] = v
	}

	conn, err := grpc.DialContext(r.Context(), h.target.Addr(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
		grpc.WithBlock(),
		grpc.FailOnNonTempDialError(true),
	)
	if err != nil {
		h.log.Warn("rest proxy dial failed", zap.String("target", h.target.Addr()), zap.Error(err))
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer conn.Close()

	resp := map[string]interface{}{}
	if err := conn.Invoke(r.Context(), mapping.GRPCMethod, req, &resp); err != nil {
		writeGRPCError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Warn("rest proxy response encode failed", zap.Error(err))
	}
}

func writeGRPCError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatusFromCode(st.Code()))
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    st.Code().String(),
		"message": st.Message(),
	})
}
