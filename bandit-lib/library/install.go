package library

import (
	"context"

	"github.com/felixband/bandit/bandit-lib/installer"
)

// Install runs a download-and-extract through inst and records the install
// on success. A cancelled or failed install records nothing: the state
// store only ever learns about completed installations.
func (l *Library) Install(ctx context.Context, inst *installer.Installer, req installer.Request) error {
	if err := inst.Install(ctx, req); err != nil {
		return err
	}
	return l.RecordInstall(req.GameID, req.TargetDir)
}
