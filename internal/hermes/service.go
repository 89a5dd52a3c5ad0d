package hermes

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/hermes/internal/blobio"
	"github.com/dreamware/hermes/internal/borg"
	"github.com/dreamware/hermes/internal/bufferpool"
	"github.com/dreamware/hermes/internal/config"
	"github.com/dreamware/hermes/internal/dpe"
	"github.com/dreamware/hermes/internal/health"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/logging"
	"github.com/dreamware/hermes/internal/metadata"
	"github.com/dreamware/hermes/internal/metrics"
	"github.com/dreamware/hermes/internal/rpc"
	"github.com/dreamware/hermes/internal/scheduler"
	"github.com/dreamware/hermes/internal/target"
)

// Service threads every per-node component into one explicit value that
// an embedder constructs once and tears down once, rather than spreading
// node state across package-level globals (doc.go).
type Service struct {
	NodeID uint32
	Config *config.Config

	Logger  logging.Logger
	Metrics *metrics.Registry

	MDM    *metadata.MDM
	Pool   *bufferpool.BufferPool
	Policy dpe.Policy
	BlobIO *blobio.BlobIO
	BORG   *borg.BORG
	Queue  *scheduler.Queue

	RPCClient *rpc.Client
	RPCServer *rpc.Server

	PeerHealth *health.PeerHealthMonitor

	traits *traitRegistry

	cancel   context.CancelFunc
	borgTask *scheduler.Task

	shutdownOnce sync.Once
}

// New validates cfg, constructs every component it describes, and starts
// the scheduler's worker pool and BORG's periodic tick. dir may be nil for
// a single-node deployment that never needs to reach a remote target.
func New(ctx context.Context, cfg *config.Config, dir *rpc.Directory) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)

	logger := logging.NewDefault("hermes", cfg.NodeID)
	metricsReg := metrics.NewRegistry(prometheus.NewRegistry())
	mdm := metadata.New(cfg.NodeID, cfg.ScoreWeights, metadata.SystemClock)

	var rpcClient *rpc.Client
	var peerHealth *health.PeerHealthMonitor
	if dir != nil {
		rpcClient = rpc.NewClient(dir)
		peerHealth = health.NewPeerHealthMonitor(dir, dir.NodeIDs(), 5*time.Second)
	}
	pool := bufferpool.New(cfg.NodeID, rpcClient, metricsReg)

	for _, tc := range cfg.Targets {
		kind, err := target.ParseDeviceKind(tc.Kind)
		if err != nil {
			cancel()
			return nil, err
		}
		targetID := ids.NewTargetID(cfg.NodeID, tc.Path)

		var tgt *target.Target
		if kind == target.DeviceRAM {
			tgt, err = target.NewRAMTarget(targetID, tc.Capacity, tc.Bandwidth, tc.Latency, tc.SlabSizes)
		} else {
			tgt, err = target.NewFileTarget(targetID, tc.Path, kind, tc.Capacity, tc.Bandwidth, tc.Latency, tc.SlabSizes)
		}
		if err != nil {
			cancel()
			return nil, fmt.Errorf("hermes: constructing target %q: %w", tc.Path, err)
		}
		pool.AddLocal(tgt)
		mdm.RegisterTarget(tgt)
	}

	policy := dpe.NewPolicy(cfg.DPE.Policy)

	queue := scheduler.NewQueue(cfg.QueueManager, metricsReg)
	numWorkers := cfg.QueueManager.MaxLanes
	if numWorkers <= 0 {
		numWorkers = 1
	}
	queue.StartWorkers(ctx, numWorkers)

	bio := blobio.New(cfg.NodeID, mdm, pool, policy, rpcClient, queue, metricsReg)

	borgInst := borg.New(mdm, pool, policy, bio, cfg.BORG)
	borgTask, err := borgInst.StartPeriodic(queue)
	if err != nil {
		cancel()
		return nil, err
	}

	svc := &Service{
		NodeID:     cfg.NodeID,
		Config:     cfg,
		Logger:     logger,
		Metrics:    metricsReg,
		MDM:        mdm,
		Pool:       pool,
		Policy:     policy,
		BlobIO:     bio,
		BORG:       borgInst,
		Queue:      queue,
		RPCClient:  rpcClient,
		PeerHealth: peerHealth,
		traits:     newTraitRegistry(),
		cancel:     cancel,
		borgTask:   borgTask,
	}
	svc.RPCServer = rpc.NewServer(pool, svc.drainForPeerShutdown)

	if peerHealth != nil {
		peerHealth.SetOnUnhealthy(func(nodeID uint32) {
			svc.Logger.Warn().Uint32("node_id", nodeID).Msg("peer node unreachable, marking unhealthy")
		})
		peerHealth.Start(ctx)
	}
	return svc, nil
}

// Serve blocks running the control and bulk RPC listeners until ctx is
// cancelled or a listener fails.
func (s *Service) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	return s.RPCServer.Serve(ctx, httpLn, grpcLn)
}

// drainForPeerShutdown is the hook rpc.Server runs when a peer's
// control-RPC "stop" call (issued by cmd/hermes-ctl) arrives.
func (s *Service) drainForPeerShutdown(ctx context.Context) error {
	s.Shutdown(ctx)
	return nil
}

// Shutdown tears the service down in the reverse order New built it: BORG's
// periodic task first, then the scheduler's workers, then any cached remote
// connections. Safe to call more than once; only the first call acts.
func (s *Service) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		if s.borgTask != nil {
			s.borgTask.Cancel()
		}
		if s.PeerHealth != nil {
			s.PeerHealth.Stop()
		}
		s.cancel()
		s.Queue.Stop()
		if s.RPCClient != nil {
			_ = s.RPCClient.Close()
		}
	})
}
