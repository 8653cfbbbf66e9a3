package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/zone"
)

// Config содержит настройки подключения к NATS
type Config struct {
	URL           string        `yaml:"url"`
	Subject       string        `yaml:"subject"`
	NodeID        string        `yaml:"node_id"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// ZoneMessage - уведомление о зоне, уходящее внешним инструментам
type ZoneMessage struct {
	Event     string       `json:"event"`
	Store     string       `json:"store"`
	Index     uint64       `json:"index"`
	Locator   zone.Locator `json:"locator"`
	AssetID   string       `json:"asset_id,omitempty"`
	Offset    vec.Vec2     `json:"offset"`
	Rotation  int          `json:"rotation"`
	Reserved  bool         `json:"reserved,omitempty"`
	Immortal  bool         `json:"immortal,omitempty"`
	NodeID    string       `json:"node_id,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewMessage собирает сообщение из события хранилища
func NewMessage(ev zone.Event, nodeID string, now time.Time) ZoneMessage {
	reg := ev.Registration
	return ZoneMessage{
		Event:     ev.Type.String(),
		Store:     ev.Store,
		Index:     reg.Index,
		Locator:   reg.Locator,
		AssetID:   reg.SourceAssetID,
		Offset:    reg.PlacementOffset,
		Rotation:  int(reg.Rotation),
		Reserved:  reg.Reserved,
		Immortal:  reg.Immortal,
		NodeID:    nodeID,
		Timestamp: now,
	}
}

// Publisher - то, что умеет отправить байты в subject. *nats.Conn подходит.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher пересылает уведомления хранилищ зон в NATS
type NATSPublisher struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	nodeID  string
	logger  *logging.Logger

	mu   sync.Mutex
	subs []zone.Subscription

	publishedCount atomic.Int64
	errorsCount    atomic.Int64
}

// Connect подключается к NATS
func Connect(config *Config) (*NATSPublisher, error) {
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 10
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Name("chunkstream"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := NewNATSPublisher(conn, config.Subject, config.NodeID)
	p.conn = conn
	p.logger.Info("📡 Уведомления о зонах публикуются в NATS %s (%s.*)", conn.ConnectedUrl(), p.subject)
	return p, nil
}

// NewNATSPublisher создаёт публикатор поверх готового соединения
func NewNATSPublisher(pub Publisher, subject, nodeID string) *NATSPublisher {
	if subject == "" {
		subject = "chunkstream.zones"
	}
	return &NATSPublisher{
		pub:     pub,
		subject: subject,
		nodeID:  nodeID,
		logger:  logging.GetComponentLogger("notify"),
	}
}

// Subject возвращает subject для события: <prefix>.<store>.<event>
func (p *NATSPublisher) Subject(store string, t zone.EventType) string {
	return p.subject + "." + store + "." + t.String()
}

// Attach подписывается на уведомления хранилища
func (p *NATSPublisher) Attach(store *zone.Store) {
	sub := store.Subscribe(p.handle)
	p.mu.Lock()
	p.subs = append(p.subs, sub)
	p.mu.Unlock()
}

func (p *NATSPublisher) handle(ev zone.Event) {
	if ev.Registration == nil {
		return
	}
	data, err := json.Marshal(NewMessage(ev, p.nodeID, time.Now()))
	if err != nil {
		p.errorsCount.Add(1)
		p.logger.Error("ошибка кодирования уведомления: %v", err)
		return
	}
	if err := p.pub.Publish(p.Subject(ev.Store, ev.Type), data); err != nil {
		p.errorsCount.Add(1)
		p.logger.Warn("не удалось опубликовать уведомление о зоне %s: %v", ev.Registration.Locator, err)
		return
	}
	p.publishedCount.Add(1)
}

// Stats возвращает число опубликованных сообщений и ошибок
func (p *NATSPublisher) Stats() (published, errors int64) {
	return p.publishedCount.Load(), p.errorsCount.Load()
}

// Close отписывается от хранилищ и закрывает соединение, если оно своё
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if p.conn != nil {
		return p.conn.Drain()
	}
	return nil
}
