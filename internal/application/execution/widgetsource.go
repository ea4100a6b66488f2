package execution

import (
	"context"

	"github.com/vizflow/vizflow/pkg/models"
)

// WidgetGraphResolver loads the graph backing a widget's source workflow.
// It implements livepoll.WidgetSource without that package needing to
// depend on the workflow loader directly.
type WidgetGraphResolver struct {
	Workflows WorkflowLoader
}

// GraphForWidget returns the graph of widget.SourceWorkflowID.
func (r WidgetGraphResolver) GraphForWidget(ctx context.Context, tenantID string, widget models.Widget) (models.Graph, error) {
	wf, err := r.Workflows.GetByID(ctx, tenantID, widget.SourceWorkflowID)
	if err != nil {
		return models.Graph{}, err
	}
	return wf.Graph, nil
}
