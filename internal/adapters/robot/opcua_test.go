package robot

import (
	"context"
	"testing"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/CaptureFlow/internal/app/pipeline"
)

func subscribedTransport() *opcuaTransport {
	tr := newOPCUATransport(OPCUAConfig{Nodes: []NodeConfig{
		{NodeID: "ns=2;s=Weld.Volt", Column: "WeldVolt"},
		{NodeID: "ns=2;s=Weld.Amps", Column: "WeldAmps"},
		{NodeID: "ns=2;s=Arc.On", Column: "ArcOn"},
	}}, zerolog.Nop())
	tr.handleMap = map[uint32]int{1: 0, 2: 1, 3: 2}
	tr.row = make([]float64, 3)
	return tr
}

func change(items ...*ua.MonitoredItemNotification) *ua.DataChangeNotification {
	return &ua.DataChangeNotification{MonitoredItems: items}
}

func item(handle uint32, v any) *ua.MonitoredItemNotification {
	return &ua.MonitoredItemNotification{
		ClientHandle: handle,
		Value:        &ua.DataValue{Value: ua.MustVariant(v)},
	}
}

func TestOPCUAReadWaitsForFirstChange(t *testing.T) {
	tr := subscribedTransport()
	_, err := tr.read(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNoSample)

	tr.apply(change(item(1, float64(24.5))))
	p, err := tr.read(context.Background())
	require.NoError(t, err)
	require.Equal(t, []float64{24.5, 0, 0}, p.Values)

	_, err = tr.read(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNoSample)
}

func TestOPCUACarriesRowForward(t *testing.T) {
	tr := subscribedTransport()
	tr.apply(change(item(1, float32(24)), item(2, int32(180)), item(3, true)))
	first, err := tr.read(context.Background())
	require.NoError(t, err)
	require.Equal(t, []float64{24, 180, 1}, first.Values)

	tr.apply(change(item(2, uint16(185))))
	second, err := tr.read(context.Background())
	require.NoError(t, err)
	require.Equal(t, []float64{24, 185, 1}, second.Values)

	// Rows handed out earlier are copies.
	require.Equal(t, []float64{24, 180, 1}, first.Values)
}

func TestOPCUASkipsUnknownHandlesAndTypes(t *testing.T) {
	tr := subscribedTransport()
	tr.apply(change(
		item(9, float64(1)),
		item(1, "not a number"),
		&ua.MonitoredItemNotification{ClientHandle: 2},
	))
	_, err := tr.read(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNoSample)

	tr.apply("not a data change")
	_, err = tr.read(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNoSample)
}

func TestOPCUAClosedSessionIsFatal(t *testing.T) {
	tr := subscribedTransport()
	client, err := opcua.NewClient("opc.tcp://127.0.0.1:4840")
	require.NoError(t, err)
	tr.client = client
	require.Equal(t, opcua.Closed, client.State())

	tr.apply(change(item(1, float64(1))))
	_, err = tr.read(context.Background())
	require.True(t, pipeline.IsFatal(err))
}

func TestVariantToFloat(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want float64
		ok   bool
	}{
		{float64(1.25), 1.25, true},
		{int8(-3), -3, true},
		{uint64(7), 7, true},
		{false, 0, true},
		{"text", 0, false},
	} {
		got, ok := variantToFloat(ua.MustVariant(tc.in))
		require.Equal(t, tc.ok, ok, "%T", tc.in)
		require.Equal(t, tc.want, got, "%T", tc.in)
	}
	_, ok := variantToFloat(nil)
	require.False(t, ok)
}
