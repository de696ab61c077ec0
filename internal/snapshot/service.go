package snapshot

import (
	"context"
	"fmt"
	"time"
)

// Service is the gated entry point to the snapshot engine. Every call asks
// the access gate first and does no engine work when the caller is refused.
type Service struct {
	gate         AccessGate
	serializer   *Serializer
	store        *Store
	orchestrator *Orchestrator
	logger       *SnapshotLogger
	metrics      *Metrics
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithServiceLogger attaches the logger used for the audit trail
func WithServiceLogger(logger *SnapshotLogger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithServiceMetrics attaches Prometheus metrics
func WithServiceMetrics(metrics *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = metrics }
}

// NewService wires the engine components behind an access gate.
func NewService(gate AccessGate, serializer *Serializer, store *Store, orchestrator *Orchestrator, opts ...ServiceOption) (*Service, error) {
	if gate == nil {
		return nil, NewConfigurationError("access gate is required", nil)
	}
	if serializer == nil || store == nil || orchestrator == nil {
		return nil, NewConfigurationError("serializer, store and orchestrator are required", nil)
	}

	s := &Service{
		gate:         gate,
		serializer:   serializer,
		store:        store,
		orchestrator: orchestrator,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns the stored snapshots, newest first.
func (s *Service) List(ctx context.Context, caller Caller) ([]SnapshotInfo, error) {
	var infos []SnapshotInfo
	err := s.run(ctx, caller, ActionList, nil, func() (map[string]interface{}, error) {
		var err error
		infos, err = s.store.List(ctx)
		return map[string]interface{}{"count": len(infos)}, err
	})
	return infos, err
}

// Create serializes the requested entity sets and saves the document.
func (s *Service) Create(ctx context.Context, caller Caller, req Request) (*SaveResult, error) {
	var result *SaveResult
	details := map[string]interface{}{
		"scope":     string(req.Scope),
		"tenant_id": req.TenantID,
	}
	err := s.run(ctx, caller, ActionCreate, details, func() (map[string]interface{}, error) {
		doc, err := s.serializer.Serialize(ctx, req)
		if err != nil {
			return nil, err
		}
		result, err = s.store.Save(ctx, doc)
		if err != nil {
			return nil, err
		}
		if result.Stats != nil {
			s.metrics.ObserveSnapshotSize(result.Stats.CompressedSize)
		}
		return map[string]interface{}{"name": result.Name, "records": doc.RowCount()}, nil
	})
	return result, err
}

// Download returns the stored bytes of a snapshot.
func (s *Service) Download(ctx context.Context, caller Caller, name string) ([]byte, error) {
	var data []byte
	err := s.run(ctx, caller, ActionDownload, map[string]interface{}{"name": name}, func() (map[string]interface{}, error) {
		var err error
		data, err = s.store.Download(ctx, name)
		return map[string]interface{}{"size_bytes": len(data)}, err
	})
	return data, err
}

// Delete removes a stored snapshot.
func (s *Service) Delete(ctx context.Context, caller Caller, name string) error {
	return s.run(ctx, caller, ActionDelete, map[string]interface{}{"name": name}, func() (map[string]interface{}, error) {
		return nil, s.store.Delete(ctx, name)
	})
}

// Restore rebuilds the destination store from a stored snapshot.
func (s *Service) Restore(ctx context.Context, caller Caller, name string, opts RestoreOptions) (*RestoreResult, error) {
	var result *RestoreResult
	err := s.run(ctx, caller, ActionRestore, map[string]interface{}{"name": name}, func() (map[string]interface{}, error) {
		doc, err := s.store.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		result, err = s.orchestrator.RestoreWithOptions(ctx, doc, opts)
		return restoreDetails(result), err
	})
	return result, err
}

// RestoreDocument rebuilds the destination store from a document supplied by
// the caller, under the same validation as a stored one.
func (s *Service) RestoreDocument(ctx context.Context, caller Caller, data []byte, opts RestoreOptions) (*RestoreResult, error) {
	var result *RestoreResult
	details := map[string]interface{}{"source": "upload", "size_bytes": len(data)}
	err := s.run(ctx, caller, ActionRestore, details, func() (map[string]interface{}, error) {
		doc, err := s.store.Parse(data)
		if err != nil {
			return nil, err
		}
		result, err = s.orchestrator.RestoreWithOptions(ctx, doc, opts)
		return restoreDetails(result), err
	})
	return result, err
}

// run authorizes the call, executes fn and records the outcome in the audit
// trail and metrics.
func (s *Service) run(ctx context.Context, caller Caller, action Action, details map[string]interface{}, fn func() (map[string]interface{}, error)) error {
	start := time.Now()

	if err := s.authorize(ctx, caller, action); err != nil {
		s.metrics.ObserveDenied(action)
		s.metrics.ObserveOperation(string(action), time.Since(start), err)
		s.logger.LogAudit(ctx, caller, action, "denied", withError(details, err))
		return err
	}

	extra, err := fn()
	s.metrics.ObserveOperation(string(action), time.Since(start), err)

	audit := make(map[string]interface{}, len(details)+len(extra)+2)
	for k, v := range details {
		audit[k] = v
	}
	for k, v := range extra {
		audit[k] = v
	}
	audit["duration"] = time.Since(start).String()

	if err != nil {
		s.logger.LogAudit(ctx, caller, action, "failure", withError(audit, err))
		return err
	}
	s.logger.LogAudit(ctx, caller, action, "success", audit)
	return nil
}

// authorize fails closed: a gate error is a denial.
func (s *Service) authorize(ctx context.Context, caller Caller, action Action) error {
	allowed, err := s.gate.Authorize(ctx, caller, action)
	if err != nil {
		return NewAuthorizationDeniedError(fmt.Sprintf("access gate failed for %s", action), err).
			WithContext("action", string(action))
	}
	if !allowed {
		return NewAuthorizationDeniedError(
			fmt.Sprintf("caller %q with role %q may not %s snapshots", caller.ID, caller.Role, action), nil,
		).WithContext("action", string(action))
	}
	return nil
}

func restoreDetails(result *RestoreResult) map[string]interface{} {
	if result == nil {
		return nil
	}
	return map[string]interface{}{
		"wiped":    result.TotalWiped(),
		"restored": result.TotalRestored(),
	}
}

func withError(details map[string]interface{}, err error) map[string]interface{} {
	out := make(map[string]interface{}, len(details)+2)
	for k, v := range details {
		out[k] = v
	}
	out["error"] = err.Error()
	if errType := ErrorTypeOf(err); errType != "" {
		out["error_type"] = string(errType)
	}
	return out
}
