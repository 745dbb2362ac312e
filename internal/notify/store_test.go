package notify

import (
	"strings"
	"testing"
)

// The dequeue statement both schedules retries for FAILED rows and reclaims
// DELIVERING rows whose dispatcher died mid-flight. Guard the predicate so a
// future edit cannot silently strand either class of row.
func TestDequeueClaimsFailedAndStaleDeliveringRows(t *testing.T) {
	if !strings.Contains(dequeueDeliveriesSQL, "status IN ($2, $3)") {
		t.Fatal("dequeue must select both PENDING and FAILED rows that are due")
	}
	if !strings.Contains(dequeueDeliveriesSQL, "OR (status = $1 AND updated_at < now() - $4::interval)") {
		t.Fatal("dequeue must reclaim DELIVERING rows once their lease lapses")
	}
	if !strings.Contains(dequeueDeliveriesSQL, "FOR UPDATE SKIP LOCKED") {
		t.Fatal("dequeue must skip rows claimed by concurrent dispatchers")
	}
	if deliveryLeaseWindow <= 0 {
		t.Fatalf("deliveryLeaseWindow = %v, must be positive", deliveryLeaseWindow)
	}
}
