package config

import (
	"errors"
	"fmt"
)

// Validator validates configuration comprehensively, accumulating every
// problem found rather than stopping at the first.
type Validator struct {
	cfg  *Config
	errs []error
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every check and returns a single joined error if any
// failed, or nil if the configuration is usable.
func (v *Validator) ValidateAll() error {
	v.validateQueue()
	v.validateAgents()
	v.validateRules()
	v.validateWorkspace()
	v.validatePreExtract()
	v.validateSystem()

	if len(v.errs) == 0 {
		return nil
	}
	return errors.Join(v.errs...)
}

func (v *Validator) fail(component, field string, err error) {
	v.errs = append(v.errs, NewValidationError(component, "", field, err))
}

func (v *Validator) validateQueue() {
	q := v.cfg.Queue
	if q.WorkerCount < 1 {
		v.fail("queue", "worker_count", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if q.MaxConcurrentTasks < 1 {
		v.fail("queue", "max_concurrent_tasks", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if q.Backend != "postgres" && q.Backend != "redis" {
		v.fail("queue", "backend", fmt.Errorf("%w: must be postgres or redis", ErrInvalidValue))
	}
	if q.Backend == "redis" && q.RedisAddr == "" {
		v.fail("queue", "redis_addr", fmt.Errorf("%w: required when backend=redis", ErrMissingRequiredField))
	}
}

func (v *Validator) validateAgents() {
	snap := v.cfg.Agents.Snapshot()
	if len(snap.Providers) == 0 {
		v.fail("agents", "providers", fmt.Errorf("%w: at least one provider required", ErrMissingRequiredField))
		return
	}
	if _, err := snap.Provider(snap.DefaultProvider); err != nil {
		v.fail("agents", "default_provider", err)
	}
	anyEnabled := false
	for name, p := range snap.Providers {
		if p.Command == "" {
			v.fail("agents", "providers."+name+".command", ErrMissingRequiredField)
		}
		if p.Enabled {
			anyEnabled = true
		}
	}
	if !anyEnabled {
		v.fail("agents", "providers", fmt.Errorf("%w: at least one provider must be enabled", ErrInvalidValue))
	}
	for ruleID, provider := range snap.RuleRoutes {
		if _, ok := snap.Providers[provider]; !ok {
			v.fail("agents", "rule_routes."+ruleID, fmt.Errorf("%w: unknown provider %q", ErrInvalidReference, provider))
		}
	}
}

func (v *Validator) validateRules() {
	if v.cfg.Rules.Dir == "" {
		v.fail("rules", "dir", ErrMissingRequiredField)
	}
}

func (v *Validator) validateWorkspace() {
	w := v.cfg.Workspace
	if w.Root == "" {
		v.fail("workspace", "root", ErrMissingRequiredField)
	}
	if w.MaxEntrySizeBytes <= 0 {
		v.fail("workspace", "max_entry_size_bytes", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if w.MaxTotalSizeBytes <= 0 {
		v.fail("workspace", "max_total_size_bytes", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if w.RetentionDays < 7 {
		v.fail("workspace", "retention_days", fmt.Errorf("%w: must be >= 7 per spec", ErrInvalidValue))
	}
}

func (v *Validator) validatePreExtract() {
	if v.cfg.PreExtract.MaxLinesPerPattern < 1 {
		v.fail("pre_extract", "max_lines_per_pattern", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
}

func (v *Validator) validateSystem() {
	s := v.cfg.System
	if s.HTTPPort == "" {
		v.fail("system", "http_port", ErrMissingRequiredField)
	}
	if s.Store == nil {
		v.fail("system", "store", ErrMissingRequiredField)
		return
	}
	switch s.Store.Driver {
	case "postgres":
		if s.Store.Postgres == nil {
			v.fail("system", "store.postgres", ErrMissingRequiredField)
		}
	case "sqlite":
		if s.Store.SQLitePath == "" {
			v.fail("system", "store.sqlite_path", ErrMissingRequiredField)
		}
	default:
		v.fail("system", "store.driver", fmt.Errorf("%w: must be postgres or sqlite", ErrInvalidValue))
	}
	if s.Auth != nil && s.Auth.Enabled && s.Auth.TokenEnv == "" {
		v.fail("system", "auth.token_env", fmt.Errorf("%w: required when auth enabled", ErrMissingRequiredField))
	}
	if s.ChatNotify != nil && s.ChatNotify.Enabled {
		if s.ChatNotify.TokenEnv == "" {
			v.fail("system", "chat_notify.token_env", fmt.Errorf("%w: required when chat notification enabled", ErrMissingRequiredField))
		}
		if s.ChatNotify.Channel == "" {
			v.fail("system", "chat_notify.channel", fmt.Errorf("%w: required when chat notification enabled", ErrMissingRequiredField))
		}
	}
	if s.Webhooks != nil && s.Webhooks.TrackerAPIURL != "" && s.Webhooks.TrackerTokenEnv == "" {
		v.fail("system", "webhooks.tracker_token_env", fmt.Errorf("%w: required when tracker_api_url is set", ErrMissingRequiredField))
	}
}
