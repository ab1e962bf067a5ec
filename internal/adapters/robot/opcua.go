package robot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/ghalamif/CaptureFlow/internal/app/pipeline"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
)

// opcuaTransport subscribes to the configured controller variables and keeps
// a carry-forward row: each read returns the latest value of every column,
// or ErrNoSample when nothing changed since the previous read.
type opcuaTransport struct {
	cfg    OPCUAConfig
	logger zerolog.Logger

	client *opcua.Client
	sub    *opcua.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	handleMap map[uint32]int
	row       []float64
	fresh     bool
}

func newOPCUATransport(cfg OPCUAConfig, logger zerolog.Logger) *opcuaTransport {
	return &opcuaTransport{cfg: cfg, logger: logger}
}

func (t *opcuaTransport) columns() []string {
	cols := make([]string, len(t.cfg.Nodes))
	for i, n := range t.cfg.Nodes {
		cols[i] = n.Column
	}
	return cols
}

func (t *opcuaTransport) probe(ctx context.Context) bool {
	client, err := opcua.NewClient(t.cfg.Endpoint, t.clientOptions()...)
	if err != nil {
		return false
	}
	if err := client.Connect(ctx); err != nil {
		t.logger.Debug().Err(err).Str("endpoint", t.cfg.Endpoint).Msg("opcua probe failed")
		return false
	}
	_ = client.Close(ctx)
	return true
}

func (t *opcuaTransport) open(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())

	client, err := opcua.NewClient(t.cfg.Endpoint, t.clientOptions()...)
	if err != nil {
		cancel()
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("opcua connect: %w", err)
	}

	notifyCh := make(chan *opcua.PublishNotificationData, len(t.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: t.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return fmt.Errorf("opcua subscribe: %w", err)
	}

	handleMap := make(map[uint32]int, len(t.cfg.Nodes))
	for i, node := range t.cfg.Nodes {
		nodeID, err := ua.ParseNodeID(node.NodeID)
		if err != nil {
			t.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("parse node id %q: %w", node.NodeID, err)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		if t.cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(t.cfg.SamplingInterval / time.Millisecond)
		}
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			t.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q: %w", node.NodeID, err)
		}
		if len(res.Results) == 0 {
			t.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q failed: empty result", node.NodeID)
		}
		if res.Results[0].StatusCode != ua.StatusOK {
			t.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q failed: %s", node.NodeID, res.Results[0].StatusCode)
		}
		handleMap[handle] = i
	}

	t.mu.Lock()
	t.client = client
	t.sub = sub
	t.cancel = cancel
	t.handleMap = handleMap
	t.row = make([]float64, len(t.cfg.Nodes))
	t.mu.Unlock()

	t.wg.Add(1)
	go t.consume(runCtx, notifyCh)
	return nil
}

func (t *opcuaTransport) read(context.Context) (pipeline.Payload, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil && t.client.State() == opcua.Closed {
		return pipeline.Payload{}, pipeline.Fatal(errors.New("opcua session closed"))
	}
	if !t.fresh {
		return pipeline.Payload{}, pipeline.ErrNoSample
	}
	t.fresh = false
	return pipeline.Payload{Values: append([]float64(nil), t.row...)}, nil
}

func (t *opcuaTransport) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				t.logger.Warn().Err(notif.Error).Str(xlog.FieldEvent, "opcua.notification_error").Msg("notification error")
				continue
			}
			t.apply(notif.Value)
		}
	}
}

func (t *opcuaTransport) apply(val interface{}) {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, item := range data.MonitoredItems {
		idx, ok := t.handleMap[item.ClientHandle]
		if !ok || item.Value == nil {
			continue
		}
		fv, ok := variantToFloat(item.Value.Value)
		if !ok {
			t.logger.Debug().Str("node", t.cfg.Nodes[idx].NodeID).Msgf("skipping unsupported type %T", item.Value.Value)
			continue
		}
		t.row[idx] = fv
		t.fresh = true
	}
}

func (t *opcuaTransport) close() error {
	t.mu.Lock()
	cancel := t.cancel
	sub := t.sub
	client := t.client
	t.cancel = nil
	t.sub = nil
	t.client = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()

	var err error
	if sub != nil {
		if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if client != nil {
		if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}

	t.wg.Wait()
	return err
}

func (t *opcuaTransport) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(t.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(t.cfg.SecurityPolicy)),
		opcua.ApplicationName(t.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}

	if t.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(t.cfg.Username, t.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (t *opcuaTransport) cleanupOnError(ctx context.Context, cancel context.CancelFunc, sub *opcua.Subscription, client *opcua.Client) {
	cancel()
	if sub != nil {
		_ = sub.Cancel(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}
