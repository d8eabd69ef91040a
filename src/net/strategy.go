package net

import (
	"context"
	"math/rand"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/jsonrpc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// PayloadSender is implemented by Connection.
type PayloadSender interface {
	Address() string
	SendPayload(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.ExtendedResponse, error)
}

// SendingStrategy distributes one request over a set of connections.
type SendingStrategy func(ctx context.Context, req *jsonrpc.Request, senders []PayloadSender) ([]*jsonrpc.ExtendedResponse, error)

// Names of the standard strategies.
const (
	StrategyAll                = "all"
	StrategyFirstSuccess       = "first-success"
	StrategyRandomFirstSuccess = "random-first-success"
	StrategyFirstOnly          = "first-only"
)

// StrategyByName returns the standard strategy called name.
func StrategyByName(name string) (SendingStrategy, error) {
	switch name {
	case StrategyAll:
		return SendToAll, nil
	case StrategyFirstSuccess:
		return SendToFirstSuccess, nil
	case StrategyRandomFirstSuccess:
		return SendToRandomFirstSuccess, nil
	case StrategyFirstOnly:
		return SendToFirstOnly, nil
	default:
		return nil, xerrors.Errorf("unknown sending strategy %q", name)
	}
}

func errNoConnection() error {
	return common.NewNetworkError("no connection available")
}

// SendToAll sends req on every connection concurrently and returns every
// response, in connection order. It fails as soon as one connection fails.
func SendToAll(ctx context.Context, req *jsonrpc.Request, senders []PayloadSender) ([]*jsonrpc.ExtendedResponse, error) {
	if len(senders) == 0 {
		return nil, errNoConnection()
	}

	responses := make([]*jsonrpc.ExtendedResponse, len(senders))

	g, gctx := errgroup.WithContext(ctx)

	for i, s := range senders {
		i, s := i, s
		g.Go(func() error {
			resp, err := s.SendPayload(gctx, req)
			if err != nil {
				return xerrors.Errorf("%s: %w", s.Address(), err)
			}
			responses[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return responses, nil
}

// SendToFirstSuccess tries the connections in order and returns the first
// successful response. It fails if every connection fails.
func SendToFirstSuccess(ctx context.Context, req *jsonrpc.Request, senders []PayloadSender) ([]*jsonrpc.ExtendedResponse, error) {
	if len(senders) == 0 {
		return nil, errNoConnection()
	}

	var lastErr error

	for _, s := range senders {
		resp, err := s.SendPayload(ctx, req)
		if err == nil {
			return []*jsonrpc.ExtendedResponse{resp}, nil
		}

		lastErr = xerrors.Errorf("%s: %w", s.Address(), err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, xerrors.Errorf("every connection failed, last error: %w", lastErr)
}

// SendToRandomFirstSuccess shuffles the connections, then behaves like
// SendToFirstSuccess.
func SendToRandomFirstSuccess(ctx context.Context, req *jsonrpc.Request, senders []PayloadSender) ([]*jsonrpc.ExtendedResponse, error) {
	shuffled := make([]PayloadSender, len(senders))
	copy(shuffled, senders)

	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return SendToFirstSuccess(ctx, req, shuffled)
}

// SendToFirstOnly only ever uses the first connection.
func SendToFirstOnly(ctx context.Context, req *jsonrpc.Request, senders []PayloadSender) ([]*jsonrpc.ExtendedResponse, error) {
	if len(senders) == 0 {
		return nil, errNoConnection()
	}

	resp, err := senders[0].SendPayload(ctx, req)
	if err != nil {
		return nil, err
	}

	return []*jsonrpc.ExtendedResponse{resp}, nil
}
