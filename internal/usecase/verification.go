package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/verifai/internal/backend"
	"github.com/example/verifai/internal/logging"
	"github.com/example/verifai/internal/normalizer"
	"github.com/example/verifai/internal/repository"
	"github.com/example/verifai/internal/verification"
)

const (
	processingMarker = "processing"
	processingTTL    = 2 * time.Minute
	resultTTL        = 10 * time.Minute
)

var (
	// ErrResultNotFound is returned when no stored result matches a request id.
	ErrResultNotFound = errors.New("verification result not found")
	// ErrResultPending is returned while a verification is still in flight.
	ErrResultPending = errors.New("verification still processing")
	// ErrResultsDisabled is returned when neither cache nor audit store is configured.
	ErrResultsDisabled = errors.New("result lookup is not configured")
)

// VerificationRepository defines the persistence operations needed by the use case.
type VerificationRepository interface {
	SaveLog(ctx context.Context, log *repository.VerificationLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.VerificationLog, error)
	FindDuplicatesByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*repository.VerificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// BackendProvider hands out the process-wide backend, or
// verification.ErrBackendUnavailable while it is not ready.
type BackendProvider interface {
	Get() (backend.Backend, error)
}

// VerificationUseCase encapsulates business logic for the verification flow.
// The repository and cache are optional; a nil value disables them.
type VerificationUseCase struct {
	backends       BackendProvider
	repo           VerificationRepository
	cache          Cache
	metrics        *Metrics
	logger         *zap.Logger
	now            func() time.Time
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Result is a successful verification together with its request id.
type Result struct {
	RequestID string
	Backend   string
	Response  *verification.Response
}

// StoredResult is a previously produced verification outcome.
type StoredResult struct {
	RequestID string                 `json:"request_id"`
	UserID    string                 `json:"user_id,omitempty"`
	Backend   string                 `json:"backend"`
	Success   bool                   `json:"success"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	Response  *verification.Response `json:"response,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// DuplicateReport lists earlier verifications of the same image by the
// same user.
type DuplicateReport struct {
	RequestID  string           `json:"request_id"`
	ImageHash  string           `json:"image_hash"`
	Duplicates []DuplicateEntry `json:"duplicates"`
}

// DuplicateEntry is one matching verification.
type DuplicateEntry struct {
	RequestID   string    `json:"request_id"`
	ObjectClass string    `json:"object_class"`
	Success     bool      `json:"success"`
	Status      string    `json:"status,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewVerificationUseCase constructs a new use case instance.
func NewVerificationUseCase(backends BackendProvider, repo VerificationRepository, cache Cache, metrics *Metrics, logger *zap.Logger) *VerificationUseCase {
	return &VerificationUseCase{
		backends:       backends,
		repo:           repo,
		cache:          cache,
		metrics:        metrics,
		logger:         logger.Named("verification_usecase"),
		now:            time.Now,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Verify runs req through the active backend and the normalizer. Failures
// are typed (see package verification) and wrapped in a
// logging.OperationError naming the failed step.
func (uc *VerificationUseCase) Verify(ctx context.Context, userID string, req verification.Request) (*Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.verify", requestID).With(zap.String("object_class", req.ObjectClass))
	started := uc.now()

	b, err := uc.backends.Get()
	if err != nil {
		uc.metrics.observe("", verification.KindName(err), uc.now().Sub(started))
		opLogger.Error("backend not ready", zap.Error(err))
		return nil, logging.NewOperationError("usecase.backend", requestID, err)
	}
	opLogger = opLogger.With(zap.String("backend", b.Name()))
	uc.markProcessing(ctx, requestID, userID)

	raw, err := b.Predict(ctx, req)
	if err != nil {
		uc.fail(ctx, opLogger, requestID, userID, b.Name(), req, started, err)
		if verification.IsClientError(err) {
			opLogger.Info("rejected request", zap.Error(err))
		} else {
			opLogger.Error("backend prediction failed", zap.Error(err))
		}
		return nil, logging.NewOperationError("usecase.predict", requestID, err)
	}

	resp, err := normalizer.Normalize(req.ObjectClass, raw)
	if err != nil {
		uc.fail(ctx, opLogger, requestID, userID, b.Name(), req, started, err)
		opLogger.Error("backend output failed validation",
			zap.Error(err),
			zap.String("error_kind", verification.KindName(err)),
			zap.String("raw_output", verification.RawOutput(err)),
		)
		return nil, logging.NewOperationError("usecase.normalize", requestID, err)
	}

	elapsed := uc.now().Sub(started)
	uc.metrics.observe(b.Name(), "success", elapsed)
	uc.metrics.observeVerdict(string(resp.Status), resp.Confidence)
	opLogger.Info("verification completed",
		zap.String("status", string(resp.Status)),
		zap.Float64("confidence", resp.Confidence),
		zap.Duration("latency", elapsed),
	)

	uc.record(ctx, opLogger, &StoredResult{
		RequestID: requestID,
		UserID:    userID,
		Backend:   b.Name(),
		Success:   true,
		Response:  resp,
		CreatedAt: started.UTC(),
	}, userID, req, elapsed)

	return &Result{RequestID: requestID, Backend: b.Name(), Response: resp}, nil
}

func (uc *VerificationUseCase) fail(ctx context.Context, opLogger *zap.Logger, requestID, userID, backendName string, req verification.Request, started time.Time, err error) {
	elapsed := uc.now().Sub(started)
	kind := verification.KindName(err)
	uc.metrics.observe(backendName, kind, elapsed)
	uc.record(ctx, opLogger, &StoredResult{
		RequestID: requestID,
		UserID:    userID,
		Backend:   backendName,
		ErrorKind: kind,
		CreatedAt: started.UTC(),
	}, userID, req, elapsed)
}

// record persists and caches an outcome. Storage is best effort and
// failures are only logged. It outlives the caller's deadline.
func (uc *VerificationUseCase) record(ctx context.Context, opLogger *zap.Logger, result *StoredResult, userID string, req verification.Request, elapsed time.Duration) {
	ctx = context.WithoutCancel(ctx)
	serialized, err := json.Marshal(result)
	if err != nil {
		opLogger.Error("failed to serialize verification result", zap.Error(err))
		return
	}

	if uc.repo != nil {
		log := &repository.VerificationLog{
			RequestID:   result.RequestID,
			UserID:      userID,
			ObjectClass: req.ObjectClass,
			ImageHash:   ImageHash(req.Image),
			Backend:     result.Backend,
			Success:     result.Success,
			ErrorKind:   result.ErrorKind,
			LatencyMs:   elapsed.Milliseconds(),
			CreatedAt:   result.CreatedAt,
		}
		if result.Response != nil {
			encoded, err := json.Marshal(result.Response)
			if err != nil {
				opLogger.Error("failed to serialize verification response", zap.Error(err))
				return
			}
			log.Status = string(result.Response.Status)
			log.Confidence = result.Response.Confidence
			log.Response = string(encoded)
		}
		if err := uc.repo.SaveLog(ctx, log); err != nil {
			opLogger.Error("failed to persist verification log", zap.Error(err))
		}
	}

	if uc.cache != nil {
		if err := uc.withRedisRetry(ctx, result.RequestID, "cache.set.result", func() error {
			return uc.cache.Set(ctx, result.RequestID, string(serialized), resultTTL)
		}); err != nil {
			opLogger.Error("failed to cache verification result", zap.Error(err))
		}
	}
}

func (uc *VerificationUseCase) markProcessing(ctx context.Context, requestID, userID string) {
	if uc.cache == nil {
		return
	}
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, requestID, pendingValue(userID), processingTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.set.processing", requestID).Warn("failed to set processing flag", zap.Error(err))
	}
}

// pendingValue is the cache entry held while a request of userID is in
// flight.
func pendingValue(userID string) string {
	return processingMarker + ":" + userID
}

// GetResult retrieves a cached verification outcome or loads it from the
// audit store. Only the user that issued the request can read it; any
// other caller gets ErrResultNotFound.
func (uc *VerificationUseCase) GetResult(ctx context.Context, userID, requestID string) (*StoredResult, error) {
	if uc.cache == nil && uc.repo == nil {
		return nil, ErrResultsDisabled
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	if uc.cache != nil {
		cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", requestID)
		switch {
		case err == nil && cached == pendingValue(userID):
			return nil, ErrResultPending
		case err == nil && strings.HasPrefix(cached, processingMarker+":"):
			return nil, ErrResultNotFound
		case err == nil:
			var payload StoredResult
			decodeErr := json.Unmarshal([]byte(cached), &payload)
			if decodeErr == nil {
				if payload.UserID != userID {
					return nil, ErrResultNotFound
				}
				return &payload, nil
			}
			opLogger.Warn("failed to decode cached result", zap.Error(decodeErr))
		case !errors.Is(err, redis.Nil):
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	if uc.repo == nil {
		return nil, ErrResultNotFound
	}
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return storedFromLog(log)
}

// GetDuplicateReport lists the requester's other verifications whose image
// hash matches requestID's.
func (uc *VerificationUseCase) GetDuplicateReport(ctx context.Context, userID, requestID string) (*DuplicateReport, error) {
	if uc.repo == nil {
		return nil, ErrResultsDisabled
	}
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}

	matches, err := uc.repo.FindDuplicatesByHash(ctx, userID, log.ImageHash, log.RequestID)
	if err != nil {
		return nil, err
	}

	report := &DuplicateReport{
		RequestID:  log.RequestID,
		ImageHash:  log.ImageHash,
		Duplicates: make([]DuplicateEntry, 0, len(matches)),
	}
	for _, m := range matches {
		report.Duplicates = append(report.Duplicates, DuplicateEntry{
			RequestID:   m.RequestID,
			ObjectClass: m.ObjectClass,
			Success:     m.Success,
			Status:      m.Status,
			Confidence:  m.Confidence,
			CreatedAt:   m.CreatedAt,
		})
	}
	return report, nil
}

// ImageHash fingerprints an uploaded image. A data URL header is ignored so
// the same bytes hash equally with or without it.
func ImageHash(payload string) string {
	payload = strings.TrimSpace(payload)
	if idx := strings.IndexByte(payload, ','); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+1:]
	}
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func storedFromLog(log *repository.VerificationLog) (*StoredResult, error) {
	result := &StoredResult{
		RequestID: log.RequestID,
		UserID:    log.UserID,
		Backend:   log.Backend,
		Success:   log.Success,
		ErrorKind: log.ErrorKind,
		CreatedAt: log.CreatedAt,
	}
	if log.Response != "" {
		var resp verification.Response
		if err := json.Unmarshal([]byte(log.Response), &resp); err != nil {
			return nil, fmt.Errorf("decode stored response for %s: %w", log.RequestID, err)
		}
		result.Response = &resp
	}
	return result, nil
}

func (uc *VerificationUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, requestID, err)
		}
		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *VerificationUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
