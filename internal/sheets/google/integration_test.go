//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"churchledger/internal/core"
	ports "churchledger/internal/sheets"
)

// Integration tests require a real spreadsheet and service account.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_AppendRecordIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := NewFromEnv(ctx, core.DefaultCatalog())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	row := ports.LedgerRow{
		RecordID:     "integration-" + time.Now().Format("20060102150405"),
		ServiceDate:  core.NewDate(time.Now().Year(), int(time.Now().Month()), time.Now().Day()),
		BranchName:   "Integration",
		ServiceTitle: "Integration Test Service",
		ByFund:       []core.FundAmount{{Fund: core.FundOffering, Amount: 1234}},
		GrandTotal:   1234,
		ApprovedAt:   time.Now(),
	}

	first, err := client.AppendRecord(ctx, row)
	if err != nil {
		t.Fatalf("Failed to append record: %v", err)
	}
	second, err := client.AppendRecord(ctx, row)
	if err != nil {
		t.Fatalf("Failed to re-append record: %v", err)
	}
	if first != second {
		t.Errorf("expected the same row on re-append, got %s and %s", first, second)
	}
}
