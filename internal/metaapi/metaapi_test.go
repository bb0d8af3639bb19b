// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metaapi_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/trac-platform/trac/internal/dal/sqlite"
	"github.com/trac-platform/trac/internal/metaapi"
	"github.com/trac-platform/trac/internal/metaservices"
	"github.com/trac-platform/trac/pkg/metadata"
	"github.com/trac-platform/trac/pkg/types"
)

// dialPublic spins up a PublicServer over an in-memory bufconn listener
// and returns a plain grpc.ClientConn using the json codec (codec.go).
func dialPublic(t *testing.T) *grpc.ClientConn {
	t.Helper()
	store, err := sqlite.Open(zaptest.NewLogger(t), ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	require.NoError(t, store.CreateTenant(context.Background(), "ACME_CORP", "Acme Corporation"))

	svc := metaservices.New(zaptest.NewLogger(t), store)
	grpcServer := grpc.NewServer()
	metaapi.RegisterPublicServer(grpcServer, metaapi.NewPublicServer(svc))

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(func() { grpcServer.Stop(); _ = store.Close() })

	conn, err := grpc.DialContext(context.Background(), "bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPublicCreateAndReadObjectRoundTrip(t *testing.T) {
	conn := dialPublic(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	def, _ := json.Marshal(map[string]int64{"rowCount": 9})
	req := &metaapi.MetadataWriteRequest{
		Tenant:     "ACME_CORP",
		ObjectType: metadata.DATA,
		Definition: metadata.ObjectDefinition{Type: metadata.DATA, MetaFormat: "json", MetaVersion: 1, Definition: def},
		Attrs:      map[string]types.Value{"description": types.NewString("a dataset")},
	}
	var created metaapi.TagResponse
	require.NoError(t, conn.Invoke(ctx, "/trac.metaapi.PublicMetadataApi/createObject", req, &created))
	require.Equal(t, 1, created.Tag.Header.ObjectVersion)
	require.True(t, types.Equal(types.NewInteger(9), created.Tag.Attrs["trac_data_row_count"]))

	readReq := &metaapi.ReadRequest{
		Tenant:   "ACME_CORP",
		Selector: metadata.SelectorOf(created.Tag.Header),
	}
	var read metaapi.TagResponse
	require.NoError(t, conn.Invoke(ctx, "/trac.metaapi.PublicMetadataApi/readObject", readReq, &read))
	require.Equal(t, created.Tag.Header.ObjectId, read.Tag.Header.ObjectId)
}

func TestPublicCreateObjectRejectsTrustedOnlyType(t *testing.T) {
	conn := dialPublic(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := &metaapi.MetadataWriteRequest{
		Tenant:     "ACME_CORP",
		ObjectType: metadata.JOB,
		Definition: metadata.ObjectDefinition{Type: metadata.JOB},
	}
	var resp metaapi.TagResponse
	err := conn.Invoke(ctx, "/trac.metaapi.PublicMetadataApi/createObject", req, &resp)
	require.Error(t, err)
}
