package toolsurface

import (
	"context"

	"github.com/browseragent/control-plane/internal/artifact"
	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/runmanager"
	"github.com/browseragent/control-plane/internal/templates"
)

func (s *Surface) registerTaskTools() {
	s.registry.Register(newTool("list_task_templates", "List the closed set of task templates and their parameter schemas.",
		objectSchema(map[string]any{}),
		s.toolListTaskTemplates))
	s.registry.Register(newTool("run_task_template", "Submit a task template run.",
		objectSchema(map[string]any{
			"templateId": map[string]any{"type": "string"},
			"inputs":     map[string]any{"type": "object"},
			"sessionId":  map[string]any{"type": "string"},
			"mode":       map[string]any{"type": "string"},
			"timeoutMs":  map[string]any{"type": "number"},
		}, "templateId", "inputs"),
		s.toolRunTaskTemplate))
	s.registry.Register(newTool("get_task_run", "Fetch a task run's current status/result.",
		objectSchema(map[string]any{"runId": map[string]any{"type": "string"}}, "runId"),
		s.toolGetTaskRun))
	s.registry.Register(newTool("list_task_runs", "List task runs, optionally filtered.",
		objectSchema(map[string]any{
			"status":     map[string]any{"type": "string"},
			"templateId": map[string]any{"type": "string"},
			"sessionId":  map[string]any{"type": "string"},
			"limit":      map[string]any{"type": "number"},
			"offset":     map[string]any{"type": "number"},
		}),
		s.toolListTaskRuns))
	s.registry.Register(newTool("cancel_task_run", "Request cancellation of a task run.",
		objectSchema(map[string]any{"runId": map[string]any{"type": "string"}}, "runId"),
		s.toolCancelTaskRun))
	s.registry.Register(newTool("get_artifact", "Fetch a stored artifact by id.",
		objectSchema(map[string]any{"artifactId": map[string]any{"type": "string"}}, "artifactId"),
		s.toolGetArtifact))
	s.registry.Register(newTool("get_runtime_profile", "Describe this server's run-manager limits and trust level.",
		objectSchema(map[string]any{}),
		s.toolGetRuntimeProfile))

	s.registry.RegisterToolGroup("task", []string{
		"list_task_templates", "run_task_template", "get_task_run", "list_task_runs",
		"cancel_task_run", "get_artifact", "get_runtime_profile",
	})
}

func (s *Surface) toolListTaskTemplates(ctx context.Context, args map[string]any) (any, error) {
	return map[string]any{"templates": templates.List()}, nil
}

func (s *Surface) toolRunTaskTemplate(ctx context.Context, args map[string]any) (any, error) {
	templateID, err := argString(args, "templateId")
	if err != nil {
		return nil, err
	}
	inputs := argMap(args, "inputs")
	if inputs == nil {
		inputs = map[string]any{}
	}
	id := templates.ID(templateID)
	if err := s.templates.Validate(id, inputs); err != nil {
		return nil, err
	}

	sessionID := argStringOpt(args, "sessionId", "")
	ownsSession := sessionID == ""

	executor, err := s.templates.Build(id, inputs, sessionID, ownsSession)
	if err != nil {
		return nil, err
	}
	totalUnits := s.templates.TotalUnits(id, inputs)

	mode := runmanager.Mode(argStringOpt(args, "mode", string(runmanager.ModeAuto)))
	timeoutMs := int64(argInt(args, "timeoutMs", 0))

	run, err := s.runs.Submit(templateID, sessionID, ownsSession, totalUnits, executor, runmanager.SubmitOptions{
		Mode:      mode,
		TimeoutMs: timeoutMs,
	})
	if err != nil {
		return nil, err
	}
	snap, _ := s.runs.Get(run.ID)
	return snap, nil
}

func (s *Surface) toolGetTaskRun(ctx context.Context, args map[string]any) (any, error) {
	runID, err := argString(args, "runId")
	if err != nil {
		return nil, err
	}
	run, ok := s.runs.Get(runID)
	if !ok {
		return nil, errs.New(errs.RunNotFound, runID)
	}
	return run, nil
}

func (s *Surface) toolListTaskRuns(ctx context.Context, args map[string]any) (any, error) {
	filter := runmanager.ListFilter{
		Status:     runmanager.Status(argStringOpt(args, "status", "")),
		TemplateID: argStringOpt(args, "templateId", ""),
		SessionID:  argStringOpt(args, "sessionId", ""),
		Limit:      argInt(args, "limit", 0),
		Offset:     argInt(args, "offset", 0),
	}
	result := s.runs.List(filter)
	return result, nil
}

func (s *Surface) toolCancelTaskRun(ctx context.Context, args map[string]any) (any, error) {
	runID, err := argString(args, "runId")
	if err != nil {
		return nil, err
	}
	ok := s.runs.Cancel(runID)
	if !ok {
		if _, exists := s.runs.Get(runID); !exists {
			return nil, errs.New(errs.RunNotFound, runID)
		}
		return map[string]any{"canceled": false, "reason": "run already terminal"}, nil
	}
	return map[string]any{"canceled": true}, nil
}

func (s *Surface) toolGetArtifact(ctx context.Context, args map[string]any) (any, error) {
	artifactID, err := argString(args, "artifactId")
	if err != nil {
		return nil, err
	}
	a, ok := s.artifacts.Get(artifactID)
	if !ok {
		return nil, errs.New(errs.InvalidParameter, "unknown or expired artifact: "+artifactID)
	}
	return encodeArtifact(a), nil
}

func encodeArtifact(a *artifact.Artifact) map[string]any {
	out := map[string]any{"id": a.ID, "kind": a.Kind, "createdAt": a.CreatedAt}
	if a.Kind == artifact.KindJSON || a.Kind == artifact.KindText {
		out["content"] = string(a.Bytes)
	} else {
		out["sizeBytes"] = len(a.Bytes)
	}
	return out
}

func (s *Surface) toolGetRuntimeProfile(ctx context.Context, args map[string]any) (any, error) {
	return map[string]any{
		"maxConcurrentRuns": s.maxConcurrentRuns,
		"trustLevel":        s.trustLevel,
		"supportedModes":    []string{string(runmanager.ModeSync), string(runmanager.ModeAsync), string(runmanager.ModeAuto)},
		"taskTemplates":     templates.List(),
	}, nil
}
