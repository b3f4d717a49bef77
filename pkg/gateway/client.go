package gateway

import (
	"context"
	"time"

	pb "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
)

// CallOption controls a single gateway call. A Deadline takes precedence over a Timeout.
type CallOption struct {
	Timeout  time.Duration
	Deadline time.Time
	GRPC     []grpc.CallOption
}

// WithTimeout is shorthand for a CallOption with only a relative deadline.
func WithTimeout(timeout time.Duration) CallOption {
	return CallOption{Timeout: timeout}
}

// WithDeadline is shorthand for a CallOption with only an absolute deadline.
func WithDeadline(deadline time.Time) CallOption {
	return CallOption{Deadline: deadline}
}

// DefaultCallOptions holds the per-operation defaults that call-level options are merged
// over.
type DefaultCallOptions struct {
	Evaluate        CallOption
	Endorse         CallOption
	Submit          CallOption
	CommitStatus    CallOption
	ChaincodeEvents CallOption
}

// merge lays overrides over base. A deadline in either form replaces the base deadline,
// gRPC options accumulate.
func merge(base CallOption, overrides []CallOption) CallOption {
	merged := CallOption{
		Timeout:  base.Timeout,
		Deadline: base.Deadline,
		GRPC:     append([]grpc.CallOption(nil), base.GRPC...),
	}
	for _, o := range overrides {
		if !o.Deadline.IsZero() {
			merged.Deadline, merged.Timeout = o.Deadline, 0
		} else if o.Timeout > 0 {
			merged.Deadline, merged.Timeout = time.Time{}, o.Timeout
		}
		merged.GRPC = append(merged.GRPC, o.GRPC...)
	}
	return merged
}

func (o CallOption) context(ctx context.Context) (context.Context, context.CancelFunc) {
	switch {
	case !o.Deadline.IsZero():
		return context.WithDeadline(ctx, o.Deadline)
	case o.Timeout > 0:
		return context.WithTimeout(ctx, o.Timeout)
	default:
		return context.WithCancel(ctx)
	}
}

// Client is the channel to a Fabric Gateway peer.
type Client struct {
	stub     pb.GatewayClient
	defaults DefaultCallOptions
}

type ClientOption func(*Client)

func WithDefaultCallOptions(defaults DefaultCallOptions) ClientOption {
	return func(c *Client) {
		c.defaults = defaults
	}
}

// NewClient wraps an established gRPC connection.
func NewClient(conn *grpc.ClientConn, opts ...ClientOption) (*Client, error) {
	if conn == nil {
		return nil, newInvalidArgument("a gRPC connection is required")
	}
	return NewClientFromStub(pb.NewGatewayClient(conn), opts...)
}

// NewClientFromStub wraps a ready gateway stub. Tests use it to inject fakes.
func NewClientFromStub(stub pb.GatewayClient, opts ...ClientOption) (*Client, error) {
	if stub == nil {
		return nil, newInvalidArgument("a gateway stub is required")
	}
	c := &Client{stub: stub}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Defaults() DefaultCallOptions { return c.defaults }

func (c *Client) Evaluate(ctx context.Context, req *pb.EvaluateRequest, opts ...CallOption) (*pb.EvaluateResponse, error) {
	o := merge(c.defaults.Evaluate, opts)
	ctx, cancel := o.context(ctx)
	defer cancel()

	resp, err := c.stub.Evaluate(ctx, req, o.GRPC...)
	if err != nil {
		return nil, errors.Wrapf(err, "evaluate of transaction %s failed", req.GetTransactionId())
	}
	return resp, nil
}

func (c *Client) Endorse(ctx context.Context, req *pb.EndorseRequest, opts ...CallOption) (*pb.EndorseResponse, error) {
	o := merge(c.defaults.Endorse, opts)
	ctx, cancel := o.context(ctx)
	defer cancel()

	resp, err := c.stub.Endorse(ctx, req, o.GRPC...)
	if err != nil {
		return nil, errors.Wrapf(err, "endorse of transaction %s failed", req.GetTransactionId())
	}
	return resp, nil
}

func (c *Client) Submit(ctx context.Context, req *pb.SubmitRequest, opts ...CallOption) (*pb.SubmitResponse, error) {
	o := merge(c.defaults.Submit, opts)
	ctx, cancel := o.context(ctx)
	defer cancel()

	resp, err := c.stub.Submit(ctx, req, o.GRPC...)
	if err != nil {
		return nil, errors.Wrapf(err, "submit of transaction %s failed", req.GetTransactionId())
	}
	return resp, nil
}

func (c *Client) CommitStatus(ctx context.Context, req *pb.SignedCommitStatusRequest, opts ...CallOption) (*pb.CommitStatusResponse, error) {
	o := merge(c.defaults.CommitStatus, opts)
	ctx, cancel := o.context(ctx)
	defer cancel()

	resp, err := c.stub.CommitStatus(ctx, req, o.GRPC...)
	if err != nil {
		return nil, errors.Wrap(err, "commit status query failed")
	}
	return resp, nil
}

// ChaincodeEvents opens the event stream. The returned cancel func releases the stream
// context and must be called once the caller stops reading.
func (c *Client) ChaincodeEvents(ctx context.Context, req *pb.SignedChaincodeEventsRequest, opts ...CallOption) (pb.Gateway_ChaincodeEventsClient, context.CancelFunc, error) {
	o := merge(c.defaults.ChaincodeEvents, opts)
	ctx, cancel := o.context(ctx)

	stream, err := c.stub.ChaincodeEvents(ctx, req, o.GRPC...)
	if err != nil {
		cancel()
		return nil, nil, errors.Wrap(err, "chaincode events request failed")
	}
	return stream, cancel, nil
}
