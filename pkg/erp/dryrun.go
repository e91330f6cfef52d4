package erp

import (
	"context"
	"fmt"
	"time"

	"github.com/clearline/invoice-agent/internal/model"
)

// DryRun is a Client that fabricates posting references without touching
// any downstream system. Used by --dry-run batches and demos.
type DryRun struct {
	now func() time.Time
}

// NewDryRun creates a DryRun client.
func NewDryRun() *DryRun {
	return &DryRun{now: time.Now}
}

func (d *DryRun) PostVendorBill(_ context.Context, inv *model.Invoice) (string, error) {
	return fmt.Sprintf("DEMO-%d", d.now().Unix()), nil
}
