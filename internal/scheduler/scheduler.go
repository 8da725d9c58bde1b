package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/observability"
)

var (
	// ErrUnknownJob indicates no job is registered under the requested name.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobLocked indicates another replica holds the job lock.
	ErrJobLocked = errors.New("job is running elsewhere")
)

const lockKeyPrefix = "scheduler:lock:"

// releaseLock deletes the lock only when this node still owns it.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

type job struct {
	name  string
	spec  string
	run   JobFunc
	entry cron.EntryID
}

// Scheduler runs named jobs on cron schedules. With a redis client, each run takes a
// SET NX lock so only one replica executes a job at a time.
type Scheduler struct {
	cron    *cron.Cron
	redis   *redis.Client
	lockTTL time.Duration
	nodeID  string
	logger  zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]*job
	ctx  context.Context
}

// New constructs a scheduler. redisClient may be nil for single-replica deployments.
func New(redisClient *redis.Client, lockTTL time.Duration, logger zerolog.Logger) *Scheduler {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		redis:   redisClient,
		lockTTL: lockTTL,
		nodeID:  uuid.NewString(),
		logger:  logger.With().Str("component", "scheduler").Logger(),
		jobs:    make(map[string]*job),
		ctx:     context.Background(),
	}
}

// Register adds a job. An empty spec registers the job for RunNow only.
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("job name and function are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	j := &job{name: name, spec: spec, run: fn}
	if spec != "" {
		entry, err := s.cron.AddFunc(spec, func() {
			s.mu.RLock()
			ctx := s.ctx
			s.mu.RUnlock()
			if err := s.execute(ctx, j); err != nil && !errors.Is(err, ErrJobLocked) {
				s.logger.Error().Err(err).Str("job", name).Msg("scheduled job failed")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
		}
		j.entry = entry
	}

	s.jobs[name] = j
	return nil
}

// Start begins firing scheduled jobs. Runs use ctx until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.List())).Msg("scheduler started")
}

// Stop halts the schedule and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// RunNow executes a job synchronously, honouring the replica lock.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j)
}

// RunAll executes every registered job once in name order. Failures are logged.
func (s *Scheduler) RunAll(ctx context.Context) {
	for _, info := range s.List() {
		if err := s.RunNow(ctx, info.Name); err != nil && !errors.Is(err, ErrJobLocked) {
			s.logger.Error().Err(err).Str("job", info.Name).Msg("startup job run failed")
		}
	}
}

// List describes the registered jobs sorted by name.
func (s *Scheduler) List() []dto.JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]dto.JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		info := dto.JobInfo{Name: j.name, Spec: j.spec}
		if j.entry != 0 {
			entry := s.cron.Entry(j.entry)
			info.NextRun = entry.Next
			info.PrevRun = entry.Prev
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, k int) bool { return infos[i].Name < infos[k].Name })
	return infos
}

func (s *Scheduler) execute(ctx context.Context, j *job) error {
	locked := false
	if s.redis != nil {
		acquired, err := s.redis.SetNX(ctx, lockKeyPrefix+j.name, s.nodeID, s.lockTTL).Result()
		switch {
		case err != nil:
			// Job handlers are idempotent, so an unreachable lock store does not block the run.
			s.logger.Warn().Err(err).Str("job", j.name).Msg("job lock unavailable, running without it")
		case !acquired:
			observability.JobRuns().WithLabelValues(j.name, "skipped").Inc()
			s.logger.Debug().Str("job", j.name).Msg("job locked by another replica")
			return ErrJobLocked
		default:
			locked = true
		}
	}
	if locked {
		defer s.unlock(j.name)
	}

	start := time.Now()
	logger := s.logger.With().Str("job", j.name).Logger()
	logger.Debug().Msg("job started")

	runErr := j.run(ctx)
	observability.JobDuration().WithLabelValues(j.name).Observe(time.Since(start).Seconds())

	if runErr != nil {
		observability.JobRuns().WithLabelValues(j.name, "failed").Inc()
		return runErr
	}
	observability.JobRuns().WithLabelValues(j.name, "succeeded").Inc()
	logger.Debug().Dur("duration", time.Since(start)).Msg("job finished")
	return nil
}

func (s *Scheduler) unlock(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseLock.Run(ctx, s.redis, []string{lockKeyPrefix + name}, s.nodeID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Str("job", name).Msg("failed to release job lock")
	}
}
