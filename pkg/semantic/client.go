// Package semantic is a gRPC client for an external meeting-type classifier.
//
// The service is addressed by method name and exchanges google.protobuf.Struct
// messages, so no generated stubs are required. The request carries the
// rendered prompt, the raw excerpt and the candidate type ids; the response is
// either a struct with a "text" field holding the model output, or the
// opinion fields directly.
package semantic

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/otherjamesbrown/meetiq/pkg/buildinfo"
	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/logging"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/classifier"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
	"github.com/otherjamesbrown/meetiq/pkg/observability"
)

// Default connection settings.
const (
	DefaultMethod           = "/meetiq.semantic.v1.Classifier/Classify"
	DefaultKeepaliveTime    = 5 * time.Minute // Must be >= gRPC server's MinTime (default 5 min)
	DefaultKeepaliveTimeout = 20 * time.Second
)

// Options configures the Client.
type Options struct {
	// Address is the host:port of the classifier service.
	Address string

	// Method is the full gRPC method name.
	Method string

	// Insecure disables TLS (for local development only).
	Insecure bool

	// TLSConfig is used when Insecure is false. A nil config uses system roots.
	TLSConfig *tls.Config

	// Token is sent as a bearer token in the authorization metadata.
	Token string

	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration

	// Table supplies the candidate types listed in the prompt.
	Table *profile.Table

	Logger  logging.Logger
	Metrics *observability.MeetingMetrics
	Tracer  *observability.Tracer
}

// DefaultOptions returns Options with default values.
func DefaultOptions() *Options {
	return &Options{
		Method:           DefaultMethod,
		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,
	}
}

// Client calls the semantic classifier. It implements classifier.Semantic.
type Client struct {
	cc      grpc.ClientConnInterface
	closer  func() error
	opts    *Options
	log     logging.Logger
	tracer  *observability.Tracer
	closeMu sync.Mutex
}

var _ classifier.Semantic = (*Client)(nil)

// Dial creates a client connection. The connection is established lazily on
// the first call.
func Dial(opts *Options) (*Client, error) {
	opts = withDefaults(opts)
	if opts.Address == "" {
		return nil, fmt.Errorf("semantic classifier address: %w", mqerrors.ErrValidation)
	}

	conn, err := grpc.NewClient(opts.Address, buildDialOptions(opts)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", opts.Address, err)
	}
	c := NewClient(conn, opts)
	c.closer = conn.Close
	return c, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface, opts *Options) *Client {
	opts = withDefaults(opts)
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.NewTracer()
	}
	return &Client{cc: cc, opts: opts, log: log, tracer: tracer}
}

func withDefaults(opts *Options) *Options {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Method == "" {
		o.Method = DefaultMethod
	}
	if o.KeepaliveTime == 0 {
		o.KeepaliveTime = DefaultKeepaliveTime
	}
	if o.KeepaliveTimeout == 0 {
		o.KeepaliveTimeout = DefaultKeepaliveTimeout
	}
	if o.Table == nil {
		o.Table = profile.Default()
	}
	return &o
}

// buildDialOptions constructs the gRPC dial options from client configuration.
func buildDialOptions(opts *Options) []grpc.DialOption {
	dialOpts := []grpc.DialOption{
		grpc.WithUserAgent(buildinfo.UserAgent()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                opts.KeepaliveTime,
			Timeout:             opts.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	}

	if opts.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		cfg := opts.TLSConfig
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(cfg)))
	}
	return dialOpts
}

// Classify asks the service for an opinion on excerpt. A response that does
// not contain a usable opinion is a parse error.
func (c *Client) Classify(ctx context.Context, excerpt string) (*classifier.Opinion, error) {
	ctx, span := c.tracer.StartSemanticSpan(ctx, c.opts.Method)
	defer span.End()
	helper := observability.NewSpanHelper(span)

	req, err := c.buildRequest(excerpt)
	if err != nil {
		return nil, err
	}

	if c.opts.Token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.opts.Token)
	}

	start := time.Now()
	reply := &structpb.Struct{}
	err = c.cc.Invoke(ctx, c.opts.Method, req, reply)
	elapsed := time.Since(start)
	helper.SetDuration(elapsed.Milliseconds())
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordSemanticLatency(elapsed.Seconds())
	}

	if err != nil {
		ce := fromStatus(err)
		ce.Duration = elapsed
		helper.SetError(ce, string(ce.Code), ce.Code.Retryable())
		return nil, ce
	}

	op, err := parseReply(reply)
	if err != nil {
		ce := &mqerrors.CollaboratorError{
			Code:     mqerrors.ErrParseError,
			Stage:    mqerrors.StageSemantic,
			Message:  err.Error(),
			Duration: elapsed,
			Cause:    err,
		}
		helper.SetError(ce, string(ce.Code), false)
		return nil, ce
	}

	helper.SetClassification(string(op.Type), int(op.Confidence*100+0.5))
	helper.SetSuccess()
	c.log.Debug("semantic classifier answered",
		logging.F("type", op.Type),
		logging.F("confidence", op.Confidence),
		logging.F("duration_ms", elapsed.Milliseconds()))
	return op, nil
}

func (c *Client) buildRequest(excerpt string) (*structpb.Struct, error) {
	types := make([]any, 0, c.opts.Table.Len())
	for _, id := range c.opts.Table.Order() {
		types = append(types, string(id))
	}
	req, err := structpb.NewStruct(map[string]any{
		"prompt":  BuildPrompt(c.opts.Table, excerpt),
		"excerpt": excerpt,
		"types":   types,
	})
	if err != nil {
		return nil, fmt.Errorf("building semantic request: %w", err)
	}
	return req, nil
}

// parseReply accepts {"text": "<model output>"} or the opinion fields inline.
func parseReply(reply *structpb.Struct) (*classifier.Opinion, error) {
	var raw string
	if v, ok := reply.GetFields()["text"]; ok {
		raw = v.GetStringValue()
	} else {
		b, err := json.Marshal(reply.AsMap())
		if err != nil {
			return nil, fmt.Errorf("malformed semantic response: %w", err)
		}
		raw = string(b)
	}

	op, ok := classifier.ParseOpinion(raw)
	if !ok {
		return nil, fmt.Errorf("malformed semantic response: %q", truncate(raw, 200))
	}
	return op, nil
}

// fromStatus maps gRPC status codes onto collaborator error codes.
func fromStatus(err error) *mqerrors.CollaboratorError {
	st, ok := status.FromError(err)
	if !ok {
		return mqerrors.ClassifyError(err, mqerrors.StageSemantic)
	}

	ce := &mqerrors.CollaboratorError{
		Stage:   mqerrors.StageSemantic,
		Message: st.Message(),
		Cause:   err,
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		ce.Code = mqerrors.ErrTimeout
	case codes.Canceled:
		ce.Code = mqerrors.ErrContextCancelled
	case codes.ResourceExhausted:
		ce.Code = mqerrors.ErrRateLimit
	case codes.Unavailable, codes.Unimplemented:
		ce.Code = mqerrors.ErrModelUnavailable
	case codes.InvalidArgument:
		ce.Code = mqerrors.ErrEmptyContent
	default:
		ce.Code = mqerrors.ErrProcessingError
	}
	return ce
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// Close closes the underlying connection if the client owns it.
// It's safe to call Close multiple times.
func (c *Client) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closer == nil {
		return nil
	}
	err := c.closer()
	c.closer = nil
	if err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}
