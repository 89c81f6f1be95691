package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/schedule"
)

// runBatches runs one batch per workspace, or with drain repeats until a
// batch leaves nothing due or makes no progress.
func runBatches(ctx context.Context, name string, r schedule.BatchRunner, workspaces []string, batchSize int, drain bool) (map[string]model.BatchResult, error) {
	out := make(map[string]model.BatchResult, len(workspaces))
	for _, ws := range workspaces {
		var total model.BatchResult
		for {
			res, err := r.ProcessBatch(ctx, ws, batchSize)
			if err != nil {
				return out, eris.Wrapf(err, "%s batch for workspace %s", name, ws)
			}
			total.Processed += res.Processed
			total.Succeeded += res.Succeeded
			total.Failed += res.Failed
			total.Remaining = res.Remaining

			if !drain || res.Processed == 0 || res.Remaining == 0 {
				break
			}
		}
		zap.L().Info(name+" run complete",
			zap.String("workspace_id", ws),
			zap.Int("processed", total.Processed),
			zap.Int("succeeded", total.Succeeded),
			zap.Int("failed", total.Failed),
			zap.Int("remaining", total.Remaining),
		)
		out[ws] = total
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
