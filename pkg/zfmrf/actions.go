package zfmrf

import (
	"context"
	"fmt"

	"github.com/fraser29/zfmrf/pkg/core"
)

// Action is one subject operation surfaced to the command line and the web
// UI. Info carries the presentation metadata; Run does the work and
// returns a one-line result for the run history.
type Action struct {
	Info core.ActionInfo
	Run  func(ctx context.Context, s *Subject) (string, error)
}

var actions = []Action{
	{
		Info: core.ActionInfo{
			Name:        "dicom-count-check",
			Description: "Check if the number of DICOMs in the subject directory and in the DICOM server are equal",
			Category:    Category,
			Order:       1,
		},
		Run: func(ctx context.Context, s *Subject) (string, error) {
			local, remote, err := s.VerifyServerCount(ctx)
			if err != nil {
				return "", err
			}
			if local != remote {
				return "", fmt.Errorf("count mismatch: %d local, %d in server", local, remote)
			}
			return fmt.Sprintf("%d DICOMs locally and in server", local), nil
		},
	},
	{
		Info: core.ActionInfo{
			Name:        "copy-gating",
			Description: "Copy gating data to study",
			Category:    Category,
			Order:       10,
		},
		Run: func(ctx context.Context, s *Subject) (string, error) {
			n, err := s.CopyGatingToStudy(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("copied %d gating files", n), nil
		},
	},
	{
		Info: core.ActionInfo{
			Name:        "copy-spectra",
			Description: "Copy spectra data to study",
			Category:    Category,
			Order:       10,
		},
		Run: func(ctx context.Context, s *Subject) (string, error) {
			copied, err := s.CopySpectraToStudy(ctx, false)
			if err != nil {
				return "", err
			}
			if !copied {
				return "spectra already present", nil
			}
			return "copied spectra from sage archive", nil
		},
	},
	{
		Info: core.ActionInfo{
			Name:        "push",
			Description: "Send subject DICOMs to the DICOM server",
			Category:    Category,
			Order:       20,
		},
		Run: func(ctx context.Context, s *Subject) (string, error) {
			n, err := s.PushToServer(ctx, "")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("uploaded %d files", n), nil
		},
	},
}

// Actions returns the registered subject actions in display order.
func Actions() []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

// ActionInfos returns the action metadata in display order, for listings.
func ActionInfos() []core.ActionInfo {
	infos := make([]core.ActionInfo, len(actions))
	for i, a := range actions {
		infos[i] = a.Info
	}
	core.SortActions(infos)
	return infos
}

// ActionByName finds a registered action.
func ActionByName(name string) (Action, error) {
	for _, a := range actions {
		if a.Info.Name == name {
			return a, nil
		}
	}
	return Action{}, fmt.Errorf("%q: %w", name, core.ErrActionNotFound)
}

// RunAction executes a named action against a subject.
func RunAction(ctx context.Context, s *Subject, name string) (string, error) {
	action, err := ActionByName(name)
	if err != nil {
		return "", err
	}
	s.Log().Info("running action", "action", name)
	detail, err := action.Run(ctx, s)
	if err != nil {
		s.Log().Error("action failed", "action", name, "error", err)
		return "", err
	}
	s.Log().Info("action finished", "action", name, "result", detail)
	return detail, nil
}
