package service

import (
	"context"
	"log/slog"

	"github.com/bubblelab/bubbleflow/config"
	"github.com/bubblelab/bubbleflow/flowstore"
	"github.com/bubblelab/bubbleflow/metric"
	"github.com/bubblelab/bubbleflow/natsclient"
	"github.com/bubblelab/bubbleflow/runstate"
)

// FlowStore is the persistence surface the flow service depends on.
// *flowstore.Store satisfies it; tests substitute in-memory fakes.
type FlowStore interface {
	Create(ctx context.Context, flow *flowstore.Flow) error
	Get(ctx context.Context, id string) (*flowstore.Flow, error)
	Update(ctx context.Context, flow *flowstore.Flow) error
	SetRuntimeState(ctx context.Context, id string, state flowstore.RuntimeState) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*flowstore.Flow, error)
}

// Dependencies provides the standard dependencies that services receive.
type Dependencies struct {
	Config          *config.Config
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	FlowStore       FlowStore
	RunStates       *runstate.Store
}
