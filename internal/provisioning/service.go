// Package provisioning contains the workflow engine that turns a declarative
// FabricConfig into an ordered sequence of remote object-creation calls, and
// the validation engine that checks a config before it runs.
package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/tomvergara/fabricd/internal/cache"
	"github.com/tomvergara/fabricd/internal/gateway"
	"github.com/tomvergara/fabricd/internal/store"
	"github.com/tomvergara/fabricd/pkg/models"
)

const jobStatusTTL = 30 * time.Minute

// Service drives provisioning jobs. The store is the durable system of
// record; the cache mirrors job status for cheap polling. Gateways are built
// per job from the credentials inside each config.
type Service struct {
	store           store.Store
	cache           cache.Cache
	newGateway      gateway.Factory
	newOrchestrator gateway.ProberFactory
}

// NewService creates a new provisioning Service.
func NewService(st store.Store, ca cache.Cache, newGateway gateway.Factory, newOrchestrator gateway.ProberFactory) *Service {
	return &Service{
		store:           st,
		cache:           ca,
		newGateway:      newGateway,
		newOrchestrator: newOrchestrator,
	}
}

// Submit durably creates a pending job and dispatches the workflow in a
// background goroutine. It returns the job immediately; all execution
// outcomes are observable only through the job store.
func (s *Service) Submit(ctx context.Context, name string, templateID *int64, cfg models.FabricConfig) (*models.Job, error) {
	initial := 0
	job := &models.Job{
		Name:       name,
		TemplateID: templateID,
		Config:     cfg,
		Status:     models.JobStatusPending,
		Progress:   &initial,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusPending, jobStatusTTL)

	go s.runProvisioning(job.ID, cfg)

	return job, nil
}

// runProvisioning executes the workflow for one job. It recovers from panics
// and always leaves the job in a terminal status; errors never propagate to
// the submitter.
//
// Batches run strictly sequentially in dependency order: tenants, routing
// contexts, bridge domains, application groups, endpoint groups. A failed
// create inside a batch is recorded and the batch continues, since later
// objects may not depend on the failed one. Only authentication failure or a
// panic aborts the whole job.
func (s *Service) runProvisioning(jobID int64, cfg models.FabricConfig) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in provisioning workflow", "error", r, "job_id", jobID)
			s.logTask(ctx, jobID, "provisioning_error", models.TaskStatusError,
				fmt.Sprintf("Provisioning failed: %v", r),
				map[string]any{"stack": string(debug.Stack())})
			s.markFailed(ctx, jobID)
		}
	}()

	s.setStatus(ctx, jobID, models.JobStatusRunning, store.WithProgress(0))
	s.logTask(ctx, jobID, "provisioning_start", models.TaskStatusInfo, "Starting provisioning workflow", nil)

	gw := s.newGateway(cfg.Credentials)

	s.logTask(ctx, jobID, "controller_auth", models.TaskStatusInfo, "Authenticating with fabric controller", nil)
	if err := gw.Authenticate(ctx); err != nil {
		s.logTask(ctx, jobID, "provisioning_error", models.TaskStatusError,
			fmt.Sprintf("Provisioning failed: fabric controller authentication failed: %v", err), nil)
		s.markFailed(ctx, jobID)
		return
	}
	s.setProgress(ctx, jobID, 10)

	for i, t := range cfg.Tenants {
		task := "create_tenant_" + t.Name
		s.logTask(ctx, jobID, task, models.TaskStatusInfo, "Creating tenant: "+t.Name, nil)

		msg, err := gw.CreateTenant(ctx, t)
		if err != nil {
			s.logTask(ctx, jobID, task, models.TaskStatusError, "Failed: "+err.Error(), nil)
		} else {
			s.logTask(ctx, jobID, task, models.TaskStatusSuccess, msg, nil)
		}

		s.setProgress(ctx, jobID, 10+20*(i+1)/len(cfg.Tenants))
	}

	for i, rc := range cfg.RoutingContexts {
		task := "create_rc_" + rc.Name
		s.logTask(ctx, jobID, task, models.TaskStatusInfo, "Creating routing context: "+rc.Name, nil)

		msg, err := gw.CreateRoutingContext(ctx, rc)
		if err != nil {
			s.logTask(ctx, jobID, task, models.TaskStatusError, "Failed: "+err.Error(), nil)
		} else {
			s.logTask(ctx, jobID, task, models.TaskStatusSuccess, msg, nil)
		}

		s.setProgress(ctx, jobID, 30+30*(i+1)/len(cfg.RoutingContexts))
	}

	for i, bd := range cfg.BridgeDomains {
		task := "create_bd_" + bd.Name
		s.logTask(ctx, jobID, task, models.TaskStatusInfo, "Creating bridge domain: "+bd.Name, nil)

		msg, err := gw.CreateBridgeDomain(ctx, bd)
		if err != nil {
			s.logTask(ctx, jobID, task, models.TaskStatusError, "Failed: "+err.Error(), nil)
		} else {
			s.logTask(ctx, jobID, task, models.TaskStatusSuccess, msg, nil)
		}

		s.setProgress(ctx, jobID, 60+30*(i+1)/len(cfg.BridgeDomains))
	}

	// The last two batches do not move the progress bar; the remainder is
	// claimed by the completed transition.
	for _, ag := range cfg.ApplicationGroups {
		task := "create_ag_" + ag.Name
		s.logTask(ctx, jobID, task, models.TaskStatusInfo, "Creating application group: "+ag.Name, nil)

		msg, err := gw.CreateApplicationGroup(ctx, ag)
		if err != nil {
			s.logTask(ctx, jobID, task, models.TaskStatusError, "Failed: "+err.Error(), nil)
		} else {
			s.logTask(ctx, jobID, task, models.TaskStatusSuccess, msg, nil)
		}
	}

	for _, epg := range cfg.EndpointGroups {
		task := "create_epg_" + epg.Name
		s.logTask(ctx, jobID, task, models.TaskStatusInfo, "Creating endpoint group: "+epg.Name, nil)

		msg, err := gw.CreateEndpointGroup(ctx, epg)
		if err != nil {
			s.logTask(ctx, jobID, task, models.TaskStatusError, "Failed: "+err.Error(), nil)
		} else {
			s.logTask(ctx, jobID, task, models.TaskStatusSuccess, msg, nil)
		}
	}

	s.setStatus(ctx, jobID, models.JobStatusCompleted, store.WithProgress(100))
	s.logTask(ctx, jobID, "provisioning_complete", models.TaskStatusSuccess,
		"Provisioning workflow completed successfully", nil)
}

func (s *Service) setStatus(ctx context.Context, jobID int64, status string, opts ...store.JobUpdateOption) {
	if err := s.store.UpdateJobStatus(ctx, jobID, status, opts...); err != nil {
		slog.Error("updating job status", "job_id", jobID, "status", status, "error", err)
	}
	_ = s.cache.SetJobStatus(ctx, jobID, status, jobStatusTTL)
}

func (s *Service) setProgress(ctx context.Context, jobID int64, pct int) {
	if err := s.store.UpdateJobStatus(ctx, jobID, models.JobStatusRunning, store.WithProgress(pct)); err != nil {
		slog.Error("updating job progress", "job_id", jobID, "progress", pct, "error", err)
	}
}

func (s *Service) markFailed(ctx context.Context, jobID int64) {
	s.setStatus(ctx, jobID, models.JobStatusFailed, store.ClearProgress())
}

func (s *Service) logTask(ctx context.Context, jobID int64, task, status, message string, details map[string]any) {
	entry := &models.TaskLogEntry{
		JobID:    jobID,
		TaskName: task,
		Status:   status,
		Message:  message,
		Details:  details,
	}
	if err := s.store.AppendTaskLog(ctx, entry); err != nil {
		slog.Error("appending task log", "job_id", jobID, "task", task, "error", err)
	}
}
