package robot

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghalamif/CaptureFlow/internal/app/pipeline"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
)

// rsiColumns is the fixed record layout of an RSI datagram.
var rsiColumns = func() []string {
	cols := []string{
		"X_RIst", "Y_RIst", "Z_RIst", "A_RIst", "B_RIst", "C_RIst",
		"X_RSol", "Y_RSol", "Z_RSol", "A_RSol", "B_RSol", "C_RSol",
		"Delay", "WeldVolt", "WeldAmps", "MotorAmps", "WFS", "IPOC", "ErrorNum",
	}
	for i := 1; i <= 10; i++ {
		cols = append(cols, fmt.Sprintf("C1%d", i))
	}
	for i := 1; i <= 4; i++ {
		cols = append(cols, fmt.Sprintf("i%d", i))
	}
	return cols
}()

type rsiPose struct {
	X float64 `xml:"X,attr"`
	Y float64 `xml:"Y,attr"`
	Z float64 `xml:"Z,attr"`
	A float64 `xml:"A,attr"`
	B float64 `xml:"B,attr"`
	C float64 `xml:"C,attr"`
}

type rsiAttrs struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

func (a rsiAttrs) get(name string) (float64, error) {
	for _, attr := range a.Attrs {
		if attr.Name.Local == name {
			return strconv.ParseFloat(strings.TrimSpace(attr.Value), 64)
		}
	}
	return 0, nil
}

type rsiDoc struct {
	RIst  *rsiPose `xml:"RIst"`
	RSol  *rsiPose `xml:"RSol"`
	Delay *struct {
		D float64 `xml:"D,attr"`
	} `xml:"Delay"`
	WeldVolt  string   `xml:"WeldVolt"`
	WeldAmps  string   `xml:"WeldAmps"`
	MotorAmps string   `xml:"MotorAmps"`
	WFS       string   `xml:"WFS"`
	IPOC      string   `xml:"IPOC"`
	ErrorNum  string   `xml:"ErrorNum"`
	Tech      rsiAttrs `xml:"Tech"`
	Status    rsiAttrs `xml:"Status"`
}

// parseRSI decodes one datagram into values ordered as rsiColumns. Missing
// Tech and Status attributes default to zero; missing poses are an error.
func parseRSI(raw []byte) ([]float64, error) {
	var doc rsiDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.RIst == nil || doc.RSol == nil || doc.Delay == nil {
		return nil, errors.New("rsi: missing RIst, RSol or Delay")
	}

	out := make([]float64, 0, len(rsiColumns))
	out = append(out,
		doc.RIst.X, doc.RIst.Y, doc.RIst.Z, doc.RIst.A, doc.RIst.B, doc.RIst.C,
		doc.RSol.X, doc.RSol.Y, doc.RSol.Z, doc.RSol.A, doc.RSol.B, doc.RSol.C,
		doc.Delay.D,
	)
	for _, field := range []struct{ name, text string }{
		{"WeldVolt", doc.WeldVolt},
		{"WeldAmps", doc.WeldAmps},
		{"MotorAmps", doc.MotorAmps},
		{"WFS", doc.WFS},
		{"IPOC", doc.IPOC},
		{"ErrorNum", doc.ErrorNum},
	} {
		v, err := strconv.ParseFloat(strings.TrimSpace(field.text), 64)
		if err != nil {
			return nil, fmt.Errorf("rsi: %s: %w", field.name, err)
		}
		out = append(out, v)
	}
	for i := 1; i <= 10; i++ {
		v, err := doc.Tech.get(fmt.Sprintf("C1%d", i))
		if err != nil {
			return nil, fmt.Errorf("rsi: Tech C1%d: %w", i, err)
		}
		out = append(out, v)
	}
	for i := 1; i <= 4; i++ {
		v, err := doc.Status.get(fmt.Sprintf("i%d", i))
		if err != nil {
			return nil, fmt.Errorf("rsi: Status i%d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

type rsiTransport struct {
	cfg    Config
	logger zerolog.Logger
	conn   net.PacketConn
	buf    []byte
	first  bool
}

func newRSITransport(cfg Config, logger zerolog.Logger) *rsiTransport {
	return &rsiTransport{cfg: cfg, logger: logger, buf: make([]byte, 4096)}
}

func (t *rsiTransport) columns() []string { return rsiColumns }

// probe pings the controller when a host is configured, otherwise checks that
// the listen address can be bound.
func (t *rsiTransport) probe(ctx context.Context) bool {
	if t.cfg.PingHost != "" {
		cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", "1", t.cfg.PingHost)
		return cmd.Run() == nil
	}
	conn, err := net.ListenPacket("udp", t.cfg.Listen)
	if err != nil {
		t.logger.Debug().Err(err).Str("listen", t.cfg.Listen).Msg("rsi bind check failed")
		return false
	}
	_ = conn.Close()
	return true
}

func (t *rsiTransport) open(context.Context) error {
	conn, err := net.ListenPacket("udp", t.cfg.Listen)
	if err != nil {
		return err
	}
	t.conn = conn
	t.logger.Info().Str("listen", conn.LocalAddr().String()).Msg("listening for rsi datagrams")
	return nil
}

func (t *rsiTransport) read(context.Context) (pipeline.Payload, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout)); err != nil {
		return pipeline.Payload{}, pipeline.Fatal(err)
	}
	n, _, err := t.conn.ReadFrom(t.buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return pipeline.Payload{}, pipeline.ErrNoSample
		}
		return pipeline.Payload{}, pipeline.Fatal(fmt.Errorf("rsi receive: %w", err))
	}

	values, err := parseRSI(t.buf[:n])
	if err != nil {
		t.logger.Warn().Err(err).Str(xlog.FieldEvent, "rsi.parse_failed").Int("bytes", n).Msg("skipping datagram")
		return pipeline.Payload{}, pipeline.ErrNoSample
	}
	if !t.first {
		t.first = true
		t.logger.Info().Msg("first data point received")
	}
	return pipeline.Payload{Values: values}, nil
}

func (t *rsiTransport) close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
