// Package natswatch streams activities straight from the ACTIVITIES JetStream
// stream. It is an alternative stream source for the feed when the API
// server does not serve activity watches.
package natswatch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/klog/v2"

	"go.miloapis.com/activityfeed/internal/metrics"
	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/filter"
)

const (
	defaultStreamName    = "ACTIVITIES"
	defaultSubjectPrefix = "activities"
	resultBuffer         = 100
)

// Config describes the JetStream connection.
type Config struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	// TenantType and TenantName scope the subscription. An empty TenantType
	// subscribes to every tenant.
	TenantType  string
	TenantName  string
	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string
	TLSCAFile   string
}

func (c *Config) complete() {
	if c.StreamName == "" {
		c.StreamName = defaultStreamName
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = defaultSubjectPrefix
	}
}

// Watcher opens one ephemeral push consumer per watch.
type Watcher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	config Config
}

func buildTLSConfig(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if config.TLSCertFile != "" && config.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.TLSCertFile, config.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load NATS client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if config.TLSCAFile != "" {
		caCert, err := os.ReadFile(config.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read NATS CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse NATS CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// New connects to NATS and opens a JetStream context.
func New(config Config) (*Watcher, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}
	config.complete()

	opts := []nats.Option{
		nats.Name("kubectl-activity"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				klog.ErrorS(err, "NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			klog.V(2).InfoS("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}

	if config.TLSEnabled {
		tlsConfig, err := buildTLSConfig(config)
		if err != nil {
			return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	klog.V(2).InfoS("Connected to NATS JetStream", "url", config.URL, "stream", config.StreamName)
	return &Watcher{conn: conn, js: js, config: config}, nil
}

// Close closes the NATS connection.
func (w *Watcher) Close() {
	if w.conn != nil {
		w.conn.Close()
	}
}

// WatchActivities subscribes to new activities matching filters. The subject
// narrows on single-valued fields; the rest of the predicate runs on each
// decoded message.
func (w *Watcher) WatchActivities(ctx context.Context, filters filter.Filters) (watch.Interface, error) {
	predicate, err := filters.Compile()
	if err != nil {
		return nil, err
	}

	subject := buildSubject(w.config, filters)
	consumerName := fmt.Sprintf("feed-%s", uuid.New().String()[:8])
	inbox := nats.NewInbox()

	_, err = w.js.AddConsumer(w.config.StreamName, &nats.ConsumerConfig{
		Name:              consumerName,
		FilterSubject:     subject,
		DeliverPolicy:     nats.DeliverNewPolicy,
		AckPolicy:         nats.AckExplicitPolicy,
		DeliverSubject:    inbox,
		InactiveThreshold: 5 * time.Minute,
		FlowControl:       true,
		Heartbeat:         30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream consumer on %s: %w", w.config.StreamName, err)
	}

	sub, err := w.conn.SubscribeSync(inbox)
	if err != nil {
		if delErr := w.js.DeleteConsumer(w.config.StreamName, consumerName); delErr != nil {
			klog.V(4).InfoS("Failed to delete consumer", "consumer", consumerName, "err", delErr)
		}
		return nil, fmt.Errorf("failed to subscribe to JetStream consumer: %w", err)
	}

	klog.V(4).InfoS("Started JetStream watch", "subject", subject, "consumer", consumerName)

	watchCtx, cancel := context.WithCancel(ctx)
	aw := newActivityWatch(watchCtx, cancel, sub.NextMsgWithContext, predicate)
	aw.cleanup = func() {
		if err := sub.Unsubscribe(); err != nil {
			klog.V(4).InfoS("Failed to unsubscribe", "consumer", consumerName, "err", err)
		}
		if err := w.js.DeleteConsumer(w.config.StreamName, consumerName); err != nil {
			klog.V(4).InfoS("Failed to delete consumer (may already be deleted)", "consumer", consumerName, "err", err)
		}
	}
	go aw.run()
	return aw, nil
}

// buildSubject narrows the subscription subject.
// Format: <prefix>.<tenant_type>.<tenant_name>.<api_group>.<source>.<kind>.<namespace>.<name>
func buildSubject(config Config, filters filter.Filters) string {
	parts := []string{config.SubjectPrefix}

	if config.TenantType == "" {
		return strings.Join(append(parts, ">"), ".")
	}
	parts = append(parts, config.TenantType, orWildcard(config.TenantName))

	group := "*"
	if len(filters.APIGroups) == 1 {
		group = strings.ReplaceAll(filters.APIGroups[0], ".", "_")
	}
	parts = append(parts, group, "*")

	kind := "*"
	if len(filters.ResourceKinds) == 1 {
		kind = filters.ResourceKinds[0]
	}
	parts = append(parts, kind)

	ns := "*"
	if len(filters.Namespaces) == 1 {
		ns = filters.Namespaces[0]
	}
	parts = append(parts, ns, ">")

	return strings.Join(parts, ".")
}

func orWildcard(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

type nextMsgFunc func(ctx context.Context) (*nats.Msg, error)

// activityWatch implements watch.Interface over a JetStream subscription.
type activityWatch struct {
	result    chan watch.Event
	next      nextMsgFunc
	predicate *filter.Predicate
	ctx       context.Context
	cancel    context.CancelFunc
	cleanup   func()
	done      chan struct{}
}

func newActivityWatch(ctx context.Context, cancel context.CancelFunc, next nextMsgFunc, predicate *filter.Predicate) *activityWatch {
	return &activityWatch{
		result:    make(chan watch.Event, resultBuffer),
		next:      next,
		predicate: predicate,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (w *activityWatch) ResultChan() <-chan watch.Event {
	return w.result
}

// Stop cancels the subscription and waits for the reader to exit. The result
// channel is closed by the reader.
func (w *activityWatch) Stop() {
	w.cancel()
	<-w.done
}

func (w *activityWatch) run() {
	defer close(w.done)
	defer close(w.result)
	defer func() {
		if w.cleanup != nil {
			w.cleanup()
		}
	}()

	for {
		msg, err := w.next(w.ctx)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			klog.ErrorS(err, "Error receiving JetStream message")
			w.send(watch.Event{Type: watch.Error, Object: errorStatus(err)})
			return
		}

		event, ok := w.handle(msg)
		if !ok {
			continue
		}
		if !w.send(event) {
			return
		}
		ack(msg)
	}
}

// handle decodes one message. Flow control and non-matching activities are
// acknowledged and skipped.
func (w *activityWatch) handle(msg *nats.Msg) (watch.Event, bool) {
	if len(msg.Data) == 0 && msg.Header.Get("Status") == "100" {
		if err := msg.Respond(nil); err != nil {
			klog.V(4).InfoS("Failed to answer flow control", "err", err)
		}
		return watch.Event{}, false
	}

	var activity v1alpha1.Activity
	if err := json.Unmarshal(msg.Data, &activity); err != nil {
		metrics.StreamEvents.WithLabelValues("malformed").Inc()
		klog.ErrorS(err, "Failed to decode activity from JetStream message")
		if nakErr := msg.Nak(); nakErr != nil {
			klog.V(4).InfoS("Failed to nak message", "err", nakErr)
		}
		return watch.Event{}, false
	}

	if meta, err := msg.Metadata(); err == nil {
		activity.ResourceVersion = strconv.FormatUint(meta.Sequence.Stream, 10)
	}

	if !w.predicate.Matches(&activity) {
		ack(msg)
		return watch.Event{}, false
	}
	return watch.Event{Type: watch.Added, Object: &activity}, true
}

func (w *activityWatch) send(event watch.Event) bool {
	select {
	case w.result <- event:
		return true
	case <-w.ctx.Done():
		return false
	}
}

func ack(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		klog.V(5).InfoS("Failed to ack message", "err", err)
	}
}

func errorStatus(err error) *metav1.Status {
	status := apierrors.NewServiceUnavailable(fmt.Sprintf("activity stream interrupted: %v", err)).ErrStatus
	return &status
}
