package envapi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dr-isosan/LifeNode/core"
	"github.com/dr-isosan/LifeNode/internal/logging"
	"github.com/dr-isosan/LifeNode/internal/observability"
	"github.com/dr-isosan/LifeNode/model"
)

var (
	// ErrEpisodeNotFound is returned for unknown episode ids.
	ErrEpisodeNotFound = errors.New("episode not found")
	// ErrEpisodeDone is returned when stepping an episode that already
	// reached a terminal state. Reset reopens it.
	ErrEpisodeDone = errors.New("episode already finished")
)

// Episode outcome labels. Terminal packet outcomes reuse the packet status
// wire names; Truncated marks the step-budget cutoff.
const (
	OutcomeDelivered = "delivered"
	OutcomeLost      = "lost"
	OutcomeTimedOut  = "timed_out"
	OutcomeTruncated = "truncated"
)

// CreateEpisodeRequest selects the world and traffic for a new episode.
// Absent fields fall back to service defaults: an auto-incremented seed and
// a random active source/destination pair. Source and Destination come
// together or not at all.
type CreateEpisodeRequest struct {
	Seed        *int64 `json:"Seed,omitempty"`
	Source      *int   `json:"Source,omitempty"`
	Destination *int   `json:"Destination,omitempty"`
}

// EpisodeState describes a freshly created or reset episode.
type EpisodeState struct {
	EpisodeID   string `json:"EpisodeID"`
	Seed        int64  `json:"Seed"`
	Source      int    `json:"Source"`
	Destination int    `json:"Destination"`
	PacketID    int    `json:"PacketID"`
	Current     int    `json:"Current"`

	Observation     []float64 `json:"Observation"`
	ObservationSize int       `json:"ObservationSize"`
	// ActionSpace is the number of discrete actions, one per neighbor slot.
	ActionSpace int `json:"ActionSpace"`
}

// StepRequest carries the agent's chosen action.
type StepRequest struct {
	Action int `json:"Action"`
}

// StepInfo carries diagnostic detail alongside the reward signal.
type StepInfo struct {
	Outcome string `json:"Outcome,omitempty"`
	Reason  string `json:"Reason,omitempty"`
	Target  int    `json:"Target"`
	Current int    `json:"Current"`
	Steps   int    `json:"Steps"`
	Path    []int  `json:"Path,omitempty"`
}

// StepResponse is the environment transition for one action.
type StepResponse struct {
	Observation []float64 `json:"Observation"`
	Reward      float64   `json:"Reward"`
	Done        bool      `json:"Done"`
	Truncated   bool      `json:"Truncated"`
	Info        StepInfo  `json:"Info"`
}

// episode owns one private simulator walking one packet. Nothing ticks it:
// churn never fires, so the world only changes through the agent's hops.
type episode struct {
	mu sync.Mutex

	id   string
	seed int64
	sim  *core.Simulator

	reqSource      *int
	reqDestination *int

	packetID    int
	source      int
	destination int

	steps     int
	done      bool
	truncated bool
	outcome   string
}

// EpisodeService manages RL episodes, one isolated simulator per episode.
type EpisodeService struct {
	cfg     core.Config
	logger  logging.Logger
	metrics *observability.EnvCollector

	mu       sync.Mutex
	episodes map[string]*episode
	autoSeed int64
}

// NewEpisodeService validates the template configuration every episode
// starts from. The metrics collector may be nil.
func NewEpisodeService(cfg core.Config, metrics *observability.EnvCollector, logger logging.Logger) (*EpisodeService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Noop()
	}
	return &EpisodeService{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		episodes: make(map[string]*episode),
	}, nil
}

// Count reports the number of live episodes.
func (s *EpisodeService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.episodes)
}

// CreateEpisode builds a fresh world, injects the episode packet, and
// returns the initial observation.
func (s *EpisodeService) CreateEpisode(ctx context.Context, req CreateEpisodeRequest) (*EpisodeState, error) {
	ctx, reqLog := logging.WithRequestLogger(ctx, s.logger)

	cfg := s.cfg
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	} else {
		s.mu.Lock()
		s.autoSeed++
		cfg.Seed = s.cfg.Seed + s.autoSeed
		s.mu.Unlock()
	}

	ctx, span := StartChildSpan(ctx, "EnvAPI/CreateEpisode", "episode", "")
	defer span.End()

	sim, err := core.NewSimulator(cfg, nil, logging.Noop())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ep := &episode{
		id:             uuid.NewString(),
		seed:           cfg.Seed,
		sim:            sim,
		reqSource:      req.Source,
		reqDestination: req.Destination,
	}
	state, err := s.begin(ep)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.mu.Lock()
	s.episodes[ep.id] = ep
	s.mu.Unlock()
	s.metrics.EpisodeStarted()

	reqLog.Info(ctx, "episode created",
		logging.String("episode_id", ep.id),
		logging.Any("seed", ep.seed),
		logging.Int("source", ep.source),
		logging.Int("destination", ep.destination),
	)
	return state, nil
}

// begin injects the episode packet into ep's simulator and builds the
// initial state. The caller holds ep exclusively.
func (s *EpisodeService) begin(ep *episode) (*EpisodeState, error) {
	var src, dst int
	switch {
	case ep.reqSource != nil && ep.reqDestination != nil:
		src, dst = *ep.reqSource, *ep.reqDestination
		if src == dst {
			return nil, fmt.Errorf("source equals destination: %w", core.ErrInvalidParameter)
		}
	case ep.reqSource == nil && ep.reqDestination == nil:
		var err error
		src, dst, err = ep.sim.RandomActivePair()
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("source and destination must be set together: %w", core.ErrInvalidParameter)
	}

	packetID, err := ep.sim.SendPacket(src, dst)
	if err != nil {
		return nil, err
	}
	obs, err := ep.sim.Observe(src, dst)
	if err != nil {
		return nil, err
	}

	ep.packetID = packetID
	ep.source, ep.destination = src, dst
	ep.steps = 0
	ep.done = false
	ep.truncated = false
	ep.outcome = ""

	cfg := ep.sim.Config()
	return &EpisodeState{
		EpisodeID:       ep.id,
		Seed:            ep.seed,
		Source:          src,
		Destination:     dst,
		PacketID:        packetID,
		Current:         src,
		Observation:     obs,
		ObservationSize: cfg.ObservationSize(),
		ActionSpace:     cfg.NeighborSlots,
	}, nil
}

func (s *EpisodeService) find(id string) (*episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[id]
	if !ok {
		return nil, fmt.Errorf("episode %s: %w", id, ErrEpisodeNotFound)
	}
	return ep, nil
}

// Step resolves the action against the packet's current neighborhood and
// executes the hop. An action pointing at no reachable neighbor ends the
// episode as lost with the loss penalty; the step budget ends it as
// truncated.
func (s *EpisodeService) Step(ctx context.Context, id string, action int) (*StepResponse, error) {
	ep, err := s.find(id)
	if err != nil {
		return nil, err
	}

	ctx, span := StartChildSpan(ctx, "EnvAPI/Step", "episode", ep.id)
	defer span.End()

	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.done {
		return nil, fmt.Errorf("episode %s: %w", id, ErrEpisodeDone)
	}

	pkt, err := ep.sim.Packet(ep.packetID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	current := pkt.Current

	target, err := ep.sim.ResolveAction(current, action)
	if err != nil {
		if errors.Is(err, core.ErrNoRoute) {
			return s.loseWithoutMoving(ctx, ep, current, action)
		}
		span.RecordError(err)
		return nil, err
	}

	res, err := ep.sim.ExecuteHop(ep.packetID, target)
	if err != nil {
		if errors.Is(err, core.ErrNoRoute) {
			return s.loseWithoutMoving(ctx, ep, current, action)
		}
		span.RecordError(err)
		return nil, err
	}

	ep.steps++
	reward := res.Reward
	done := res.Terminal
	outcome := ""
	if done {
		outcome = res.Status.String()
	}
	truncated := false
	if !done && ep.steps >= s.cfg.MaxEpisodeSteps {
		done = true
		truncated = true
		outcome = OutcomeTruncated
		reward = core.RewardLost
	}

	pkt, err = ep.sim.Packet(ep.packetID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	obs, err := ep.sim.Observe(pkt.Current, ep.destination)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if done {
		ep.done = true
		ep.truncated = truncated
		ep.outcome = outcome
		s.metrics.EpisodeFinished(outcome, ep.steps)
	}

	return &StepResponse{
		Observation: obs,
		Reward:      reward,
		Done:        done,
		Truncated:   truncated,
		Info: StepInfo{
			Outcome: outcome,
			Reason:  string(pkt.LossReason),
			Target:  res.To,
			Current: pkt.Current,
			Steps:   ep.steps,
			Path:    append([]int(nil), pkt.Path...),
		},
	}, nil
}

// loseWithoutMoving ends the episode when the chosen action has no usable
// target. The packet is left in flight inside the private simulator; only
// the episode accounting records the loss.
func (s *EpisodeService) loseWithoutMoving(ctx context.Context, ep *episode, current, action int) (*StepResponse, error) {
	ep.steps++
	ep.done = true
	ep.outcome = OutcomeLost
	s.metrics.EpisodeFinished(OutcomeLost, ep.steps)

	obs, err := ep.sim.Observe(current, ep.destination)
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "episode lost on unroutable action",
		logging.String("episode_id", ep.id),
		logging.Int("action", action),
		logging.Int("current", current),
	)

	return &StepResponse{
		Observation: obs,
		Reward:      core.RewardLost,
		Done:        true,
		Info: StepInfo{
			Outcome: OutcomeLost,
			Reason:  string(model.LossNoRoute),
			Target:  -1,
			Current: current,
			Steps:   ep.steps,
		},
	}, nil
}

// Reset rebuilds the episode's world from its seed and injects a fresh
// packet, reproducing the episode's original starting state.
func (s *EpisodeService) Reset(ctx context.Context, id string) (*EpisodeState, error) {
	ep, err := s.find(id)
	if err != nil {
		return nil, err
	}

	ctx, span := StartChildSpan(ctx, "EnvAPI/Reset", "episode", ep.id)
	defer span.End()

	ep.mu.Lock()
	defer ep.mu.Unlock()

	wasDone := ep.done
	oldSteps := ep.steps
	if err := ep.sim.CreateNetwork(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	state, err := s.begin(ep)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !wasDone {
		s.metrics.EpisodeFinished("", oldSteps)
	}
	s.metrics.EpisodeStarted()

	s.logger.Debug(ctx, "episode reset", logging.String("episode_id", ep.id))
	return state, nil
}

// DeleteEpisode drops the episode and its simulator.
func (s *EpisodeService) DeleteEpisode(ctx context.Context, id string) error {
	s.mu.Lock()
	ep, ok := s.episodes[id]
	if ok {
		delete(s.episodes, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("episode %s: %w", id, ErrEpisodeNotFound)
	}

	ep.mu.Lock()
	defer ep.mu.Unlock()
	if !ep.done {
		s.metrics.EpisodeFinished("", ep.steps)
	}
	s.logger.Debug(ctx, "episode deleted", logging.String("episode_id", id))
	return nil
}
