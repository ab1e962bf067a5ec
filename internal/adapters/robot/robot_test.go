package robot

import (
	"context"
	"encoding/csv"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/CaptureFlow/internal/adapters/base"
	"github.com/ghalamif/CaptureFlow/internal/domain"
)

const datagram = `<Rob Type="KUKA">
<RIst X="512.3" Y="-20.5" Z="301.0" A="90.0" B="0.5" C="179.9"/>
<RSol X="512.4" Y="-20.4" Z="301.1" A="90.0" B="0.5" C="179.9"/>
<Delay D="0"/>
<WeldVolt>24.1</WeldVolt>
<WeldAmps>182.0</WeldAmps>
<MotorAmps>3.2</MotorAmps>
<WFS>8.5</WFS>
<Tech C11="1.5" C12="2.5"/>
<Status i1="1" i3="4"/>
<IPOC>4123456</IPOC>
<ErrorNum>0</ErrorNum>
</Rob>`

func TestParseRSI(t *testing.T) {
	values, err := parseRSI([]byte(datagram))
	require.NoError(t, err)
	require.Len(t, values, len(rsiColumns))

	col := func(name string) float64 {
		for i, c := range rsiColumns {
			if c == name {
				return values[i]
			}
		}
		t.Fatalf("unknown column %s", name)
		return 0
	}
	require.Equal(t, 512.3, col("X_RIst"))
	require.Equal(t, -20.4, col("Y_RSol"))
	require.Equal(t, 24.1, col("WeldVolt"))
	require.Equal(t, 4123456.0, col("IPOC"))
	require.Equal(t, 2.5, col("C12"))
	require.Zero(t, col("C110"))
	require.Equal(t, 4.0, col("i3"))
	require.Zero(t, col("i4"))
}

func TestParseRSIRejectsIncompleteDocument(t *testing.T) {
	_, err := parseRSI([]byte(`<Rob><RIst X="1"/></Rob>`))
	require.Error(t, err)
	_, err = parseRSI([]byte("not xml"))
	require.Error(t, err)
}

func newRSIAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(Config{Transport: "rsi", Listen: "127.0.0.1:0", ReadTimeout: 20 * time.Millisecond}, base.Options{})
	require.NoError(t, err)
	return a
}

func TestRSIAdapterWritesDatagrams(t *testing.T) {
	root := t.TempDir()
	a := newRSIAdapter(t)
	require.True(t, a.Probe(context.Background()))
	require.NoError(t, a.Initialize(context.Background(), root))

	addr := a.tr.(*rsiTransport).conn.LocalAddr().String()
	tok := domain.NewCancelToken(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(tok) }()

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()
	for i := 0; i < 3; i++ {
		_, err := conn.Write([]byte(datagram))
		require.NoError(t, err)
	}
	_, err = conn.Write([]byte("<garbage"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return a.Stats().Samples == 3 }, 2*time.Second, 5*time.Millisecond)
	tok.Set(domain.ErrOperatorStop)
	require.NoError(t, <-done)
	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())

	f, err := os.Open(filepath.Join(root, FileName))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, "Timestamp", rows[0][0])
	require.Equal(t, "Elapsed_ms", rows[0][1])
	require.Equal(t, "X_RIst", rows[0][2])
	require.Equal(t, "0.000", rows[1][1])
	require.Equal(t, "512.3", rows[1][2])
}

func TestRSIAdapterTransportFailureRaisesToken(t *testing.T) {
	a := newRSIAdapter(t)
	require.NoError(t, a.Initialize(context.Background(), t.TempDir()))
	defer a.Shutdown()

	tok := domain.NewCancelToken(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(tok) }()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, a.tr.(*rsiTransport).conn.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, domain.ErrStreaming)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after transport failure")
	}
	require.True(t, tok.IsSet())
}

func TestRunBeforeInitialize(t *testing.T) {
	a := newRSIAdapter(t)
	require.ErrorIs(t, a.Run(domain.NewCancelToken(context.Background())), domain.ErrStreaming)
	require.NoError(t, a.Shutdown())
}

func TestSimTransportStreams(t *testing.T) {
	a, err := New(Config{Transport: "sim", SimInterval: time.Millisecond}, base.Options{})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background(), t.TempDir()))
	defer a.Shutdown()

	tok := domain.NewCancelToken(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(tok) }()
	require.Eventually(t, func() bool { return a.Stats().Samples >= 5 }, 2*time.Second, 5*time.Millisecond)
	tok.Set(domain.ErrOperatorStop)
	require.NoError(t, <-done)
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{Transport: "opcua"}
	cfg.ApplyDefaults()
	require.Error(t, cfg.Validate())

	cfg = Config{Transport: "serial"}
	cfg.ApplyDefaults()
	require.Error(t, cfg.Validate())

	cfg = Config{Transport: "opcua", OPCUA: OPCUAConfig{Endpoint: "opc.tcp://robot:4840", Nodes: []NodeConfig{{NodeID: "ns=2;s=Weld.Volt"}}}}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "ns=2;s=Weld.Volt", cfg.OPCUA.Nodes[0].Column)
	require.Equal(t, "robot", cfg.Name)
}
